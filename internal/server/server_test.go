package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medicore/medidash/internal/config"
	"github.com/medicore/medidash/internal/dashboard"
	"github.com/medicore/medidash/internal/export"
	"github.com/medicore/medidash/internal/fixture"
	"github.com/medicore/medidash/internal/query"
	"github.com/medicore/medidash/internal/server"
	"github.com/medicore/medidash/internal/warehouse"
)

// --- Test helpers ---

// testEnv sets up a server over a temporary sqlite warehouse.
type testEnv struct {
	srv     *server.Server
	handler http.Handler
	w       *fixture.Writer
	wh      *warehouse.DB
	dataDir string
}

// setupOption customizes the config used by setup.
type setupOption func(*config.Config)

// clock pins the default date window to 2025.
func clock() time.Time {
	return time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
}

func setup(
	t *testing.T,
	opts ...setupOption,
) *testEnv {
	return setupWithServerOpts(t, nil, opts...)
}

func setupWithServerOpts(
	t *testing.T,
	srvOpts []server.Option,
	opts ...setupOption,
) *testEnv {
	t.Helper()
	w := fixture.NewSQLite(t)
	wh, err := warehouse.Open(context.Background(), warehouse.Options{
		Driver: query.DriverSQLite,
		DSN:    w.Path,
	})
	if err != nil {
		t.Fatalf("opening warehouse: %v", err)
	}
	t.Cleanup(func() { wh.Close() })

	dir := t.TempDir()
	cfg := config.Config{
		Host:         "127.0.0.1",
		Port:         0,
		DataDir:      dir,
		WriteTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	srvOpts = append([]server.Option{server.WithClock(clock)}, srvOpts...)
	srv := server.New(cfg, wh, dashboard.NewRunner(wh), srvOpts...)

	return &testEnv{
		srv:     srv,
		handler: srv.Handler(),
		w:       w,
		wh:      wh,
		dataDir: dir,
	}
}

// listenAndServe starts the server on a real port and returns the
// base URL. The server is shut down when the test finishes.
func (te *testEnv) listenAndServe(t *testing.T) string {
	t.Helper()
	port := server.FindAvailablePort("127.0.0.1", 40000)
	te.srv.SetPort(port)

	var serveErr error
	done := make(chan struct{})
	go func() {
		serveErr = te.srv.ListenAndServe()
		close(done)
	}()

	// Wait for the port to accept connections.
	deadline := time.Now().Add(2 * time.Second)
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	ready := false
	var lastDialErr error
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout(
			"tcp", addr, 50*time.Millisecond,
		)
		if err == nil {
			conn.Close()
			ready = true
			break
		}
		lastDialErr = err
		time.Sleep(10 * time.Millisecond)
	}
	if !ready {
		select {
		case <-done:
			t.Fatalf(
				"server failed to start: %v", serveErr,
			)
		default:
		}
		t.Fatalf(
			"server not ready after 2s: last dial error: %v",
			lastDialErr,
		)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(
			context.Background(), 5*time.Second,
		)
		defer cancel()
		if err := te.srv.Shutdown(ctx); err != nil &&
			err != http.ErrServerClosed {
			t.Errorf("server shutdown error: %v", err)
		}
		select {
		case <-done:
			if serveErr != nil &&
				serveErr != http.ErrServerClosed {
				t.Errorf(
					"server exited with error: %v",
					serveErr,
				)
			}
		case <-time.After(5 * time.Second):
			t.Error("timed out waiting for server goroutine")
		}
	})

	return fmt.Sprintf("http://127.0.0.1:%d", port)
}

func encounter(
	id, dept, typ, date string, inpatient bool,
) fixture.Encounter {
	return fixture.Encounter{
		ID: id, PatientID: "P" + id, Department: fixture.Ptr(dept),
		Type: typ, Date: date, Inpatient: inpatient,
		Outpatient: !inpatient,
	}
}

func (te *testEnv) seedEncounters(t *testing.T) {
	t.Helper()
	err := te.w.InsertEncounters(context.Background(),
		encounter("1", "Cardiology", "Inpatient", "2025-01-05", true),
		encounter("2", "Cardiology", "Inpatient", "2025-01-20", true),
		encounter("3", "Cardiology", "Inpatient", "2025-02-11", true),
		encounter("4", "Cardiology", "Outpatient", "2025-03-02", false),
		encounter("5", "Cardiology", "Outpatient", "2025-03-31", false),
		encounter("6", "Radiology", "Inpatient", "2025-02-14", true),
		encounter("7", "Radiology", "Outpatient", "2025-03-15", false),
		encounter("8", "Oncology", "Inpatient", "2024-11-02", true),
	)
	if err != nil {
		t.Fatalf("seeding encounters: %v", err)
	}
}

func (te *testEnv) get(
	t *testing.T, path string,
) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	te.handler.ServeHTTP(w, req)
	return w
}

// decode unmarshals the response body into a typed struct.
func decode[T any](
	t *testing.T, w *httptest.ResponseRecorder,
) T {
	t.Helper()
	var result T
	if err := json.Unmarshal(
		w.Body.Bytes(), &result,
	); err != nil {
		t.Fatalf("decoding JSON: %v\nbody: %s",
			err, w.Body.String())
	}
	return result
}

func assertStatus(
	t *testing.T, w *httptest.ResponseRecorder, code int,
) {
	t.Helper()
	if w.Code != code {
		t.Fatalf("expected status %d, got %d: %s",
			code, w.Code, w.Body.String())
	}
}

// assertErrorResponse checks that the response body is a JSON
// object with an "error" field matching wantMsg.
func assertErrorResponse(
	t *testing.T, w *httptest.ResponseRecorder,
	wantMsg string,
) {
	t.Helper()
	resp := decode[map[string]string](t, w)
	if got := resp["error"]; got != wantMsg {
		t.Errorf("error = %q, want %q", got, wantMsg)
	}
}

// panelJSON mirrors dashboard.PanelResult as decoded by a client.
type panelJSON struct {
	Dashboard string `json:"dashboard"`
	Panel     string `json:"panel"`
	Title     string `json:"title"`
	Empty     bool   `json:"empty"`
	Message   string `json:"message"`
	Table     struct {
		Columns []struct {
			Name string `json:"name"`
			Kind string `json:"kind"`
		} `json:"columns"`
		Rows [][]any `json:"rows"`
	} `json:"table"`
}

func (p panelJSON) cell(t *testing.T, row int, col string) any {
	t.Helper()
	for i, c := range p.Table.Columns {
		if c.Name == col {
			require.Greater(t, len(p.Table.Rows), row)
			return p.Table.Rows[row][i]
		}
	}
	t.Fatalf("panel %s has no column %s", p.Panel, col)
	return nil
}

type dashboardJSON struct {
	Dashboard string          `json:"dashboard"`
	Title     string          `json:"title"`
	Filters   query.FilterKey `json:"filters"`
	Options   struct {
		Growth bool `json:"growth"`
	} `json:"options"`
	Panels []panelJSON `json:"panels"`
}

// --- Tests ---

func TestListDashboards(t *testing.T) {
	te := setup(t)

	w := te.get(t, "/api/v1/dashboards")
	assertStatus(t, w, http.StatusOK)

	type info struct {
		ID         string   `json:"id"`
		Title      string   `json:"title"`
		Dimensions []string `json:"dimensions"`
		Growth     bool     `json:"growth"`
		Panels     []struct {
			ID     string `json:"id"`
			Growth bool   `json:"growth"`
		} `json:"panels"`
	}
	resp := decode[struct {
		Dashboards []info `json:"dashboards"`
	}](t, w)

	require.Len(t, resp.Dashboards, 3)
	byID := map[string]info{}
	for _, d := range resp.Dashboards {
		byID[d.ID] = d
	}
	assert.Equal(t,
		[]string{"department", "encounter_type"},
		byID["clinical"].Dimensions,
	)
	assert.Equal(t,
		[]string{"payer", "department", "claim_status"},
		byID["revenue"].Dimensions,
	)
	assert.Empty(t, byID["executive"].Dimensions)
	assert.True(t, byID["executive"].Growth)
	assert.False(t, byID["clinical"].Growth)
	assert.Len(t, byID["clinical"].Panels, 5)
}

func TestGetDashboard_Clinical(t *testing.T) {
	te := setup(t)
	te.seedEncounters(t)

	w := te.get(t, "/api/v1/dashboards/clinical"+
		"?from=2025-01-01&to=2025-03-31&department=Cardiology")
	assertStatus(t, w, http.StatusOK)

	resp := decode[dashboardJSON](t, w)
	assert.Equal(t, "clinical", resp.Dashboard)
	assert.Equal(t, "MediCore Clinical Operations Dashboard", resp.Title)
	assert.Equal(t, []string{"Cardiology"}, resp.Filters.Departments)
	require.Len(t, resp.Panels, 5)

	kpis := resp.Panels[0]
	assert.Equal(t, "kpis", kpis.Panel)
	assert.Equal(t, float64(5), kpis.cell(t, 0, "TOTAL_ENCOUNTERS"))
	assert.Equal(t, float64(3), kpis.cell(t, 0, "INPATIENT_ENCOUNTERS"))

	trend := resp.Panels[1]
	assert.Equal(t, "encounter_trend", trend.Panel)
	require.Len(t, trend.Table.Rows, 3)
	assert.Equal(t, "2025-01-01", trend.cell(t, 0, "MONTH_KEY"))
	assert.Equal(t, "2025-03-01", trend.cell(t, 2, "MONTH_KEY"))

	labs := resp.Panels[4]
	assert.True(t, labs.Empty)
	assert.NotEmpty(t, labs.Message)
	assert.NotNil(t, labs.Table.Rows)
}

func TestGetDashboard_DefaultWindowIsCurrentYear(t *testing.T) {
	te := setup(t)
	te.seedEncounters(t)

	w := te.get(t, "/api/v1/dashboards/clinical")
	assertStatus(t, w, http.StatusOK)

	resp := decode[dashboardJSON](t, w)
	assert.Equal(t, "2025-01-01", resp.Filters.Start)
	assert.Equal(t, "2025-12-31", resp.Filters.End)
	// The 2024 Oncology encounter is outside the default window.
	assert.Equal(t, float64(7), resp.Panels[0].cell(t, 0, "TOTAL_ENCOUNTERS"))
}

func TestGetDashboard_Errors(t *testing.T) {
	te := setup(t)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"unknown dashboard", "/api/v1/dashboards/finance", http.StatusNotFound},
		{"unsupported filter",
			"/api/v1/dashboards/executive?department=Cardiology",
			http.StatusBadRequest},
		{"filter from another dashboard",
			"/api/v1/dashboards/clinical?payer=Medicare",
			http.StatusBadRequest},
		{"inverted window",
			"/api/v1/dashboards/clinical?from=2025-06-01&to=2025-01-01",
			http.StatusBadRequest},
		{"bad date",
			"/api/v1/dashboards/revenue?from=2025-13-01",
			http.StatusBadRequest},
		{"unknown parameter",
			"/api/v1/dashboards/revenue?region=west",
			http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := te.get(t, tt.path)
			assertStatus(t, w, tt.status)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.NotEmpty(t, decode[map[string]string](t, w)["error"])
		})
	}
}

func TestGetPanel(t *testing.T) {
	te := setup(t)
	te.seedEncounters(t)

	w := te.get(t, "/api/v1/dashboards/clinical/panels/department_workload"+
		"?from=2025-01-01&to=2025-03-31&encounter_type=Inpatient")
	assertStatus(t, w, http.StatusOK)

	p := decode[panelJSON](t, w)
	assert.Equal(t, "Department Workload (Top 10)", p.Title)
	require.Len(t, p.Table.Rows, 2)
	assert.Equal(t, "Cardiology", p.cell(t, 0, "DEPARTMENT_NAME"))
	assert.Equal(t, float64(3), p.cell(t, 0, "ENCOUNTER_COUNT"))
	assert.Equal(t, "Radiology", p.cell(t, 1, "DEPARTMENT_NAME"))
}

func TestGetPanel_EmptyWarehouse(t *testing.T) {
	te := setup(t)

	w := te.get(t, "/api/v1/dashboards/revenue/panels/kpis")
	assertStatus(t, w, http.StatusOK)
	kpis := decode[panelJSON](t, w)
	assert.False(t, kpis.Empty)
	assert.Equal(t, float64(0), kpis.cell(t, 0, "DENIAL_RATE"))
	assert.Equal(t, float64(0), kpis.cell(t, 0, "TOTAL_BILLED"))

	w = te.get(t, "/api/v1/dashboards/revenue/panels/revenue_trend")
	assertStatus(t, w, http.StatusOK)
	trend := decode[panelJSON](t, w)
	assert.True(t, trend.Empty)
	assert.Equal(t, "No revenue trend data available for the selected filters.", trend.Message)
}

func TestGetPanel_UnknownPanel(t *testing.T) {
	te := setup(t)

	w := te.get(t, "/api/v1/dashboards/clinical/panels/snapshot")
	assertStatus(t, w, http.StatusNotFound)
}

func TestGetPanel_GrowthVariant(t *testing.T) {
	te := setup(t)
	err := te.w.InsertPatientVolume(context.Background(),
		fixture.PatientMonth{Month: "2025-01-01", Patients: 100, Encounters: 150},
		fixture.PatientMonth{Month: "2025-02-01", Patients: 150, Encounters: 180},
	)
	require.NoError(t, err)

	w := te.get(t, "/api/v1/dashboards/executive/panels/patient_trend?growth=true")
	assertStatus(t, w, http.StatusOK)
	p := decode[panelJSON](t, w)
	require.Len(t, p.Table.Rows, 2)
	assert.Equal(t, float64(0), p.cell(t, 0, "PATIENT_GROWTH_PCT"))
	assert.Equal(t, float64(50), p.cell(t, 1, "PATIENT_GROWTH_PCT"))
}

func TestGetOptions(t *testing.T) {
	te := setup(t)
	te.seedEncounters(t)

	w := te.get(t, "/api/v1/dashboards/clinical/options")
	assertStatus(t, w, http.StatusOK)

	resp := decode[struct {
		Dashboard string                   `json:"dashboard"`
		Filters   []dashboard.FilterOption `json:"filters"`
	}](t, w)
	require.Len(t, resp.Filters, 2)
	assert.Equal(t, query.Department, resp.Filters[0].Dimension)
	assert.Equal(t,
		[]string{"Cardiology", "Oncology", "Radiology"},
		resp.Filters[0].Values,
	)
	assert.Equal(t,
		[]string{"Inpatient", "Outpatient"},
		resp.Filters[1].Values,
	)

	w = te.get(t, "/api/v1/dashboards/finance/options")
	assertStatus(t, w, http.StatusNotFound)
}

func TestExportPanel(t *testing.T) {
	te := setup(t)
	te.seedEncounters(t)

	w := te.get(t, "/api/v1/dashboards/clinical/panels/encounter_trend/export"+
		"?from=2025-01-01&to=2025-03-31&department=Cardiology")
	assertStatus(t, w, http.StatusOK)
	assert.Equal(t, "application/vnd.apache.parquet", w.Header().Get("Content-Type"))
	assert.Equal(t,
		`attachment; filename="clinical-encounter_trend-2025-01-01-2025-03-31.parquet"`,
		w.Header().Get("Content-Disposition"),
	)

	data := w.Body.Bytes()
	cells, err := parquet.Read[export.Cell](bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	// 3 months x MONTH_KEY, TOTAL_ENCOUNTERS, INPATIENT, OUTPATIENT.
	assert.Len(t, cells, 12)

	f, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	v, ok := f.Lookup("dashboard")
	assert.True(t, ok)
	assert.Equal(t, "clinical", v)
}

func TestExportPanel_Long(t *testing.T) {
	te := setup(t)
	te.seedEncounters(t)

	w := te.get(t, "/api/v1/dashboards/clinical/panels/encounter_trend/export"+
		"?from=2025-01-01&to=2025-03-31&department=Cardiology&long=true")
	assertStatus(t, w, http.StatusOK)

	data := w.Body.Bytes()
	cells, err := parquet.Read[export.Cell](bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	// 3 months x 2 series, each row MONTH_KEY, Type, Count.
	require.Len(t, cells, 18)
	assert.Equal(t, "Type", cells[1].Column)
	require.NotNil(t, cells[1].Text)
	assert.Equal(t, "INPATIENT", *cells[1].Text)
	require.NotNil(t, cells[2].Number)
	assert.Equal(t, 2.0, *cells[2].Number)
}

func TestExportPanel_Errors(t *testing.T) {
	te := setup(t)

	w := te.get(t, "/api/v1/dashboards/clinical/panels/nope/export")
	assertStatus(t, w, http.StatusNotFound)

	w = te.get(t, "/api/v1/dashboards/clinical/panels/kpis/export?from=bad")
	assertStatus(t, w, http.StatusBadRequest)
}

func TestWarehouseFailureIsRedacted(t *testing.T) {
	te := setup(t)
	require.NoError(t, te.wh.Close())

	w := te.get(t, "/api/v1/dashboards/clinical")
	assertStatus(t, w, http.StatusInternalServerError)
	assertErrorResponse(t, w, "internal server error")
	assert.NotContains(t, w.Body.String(), "sql")
}

func TestHealth(t *testing.T) {
	te := setup(t)

	w := te.get(t, "/api/v1/health")
	assertStatus(t, w, http.StatusOK)
	assert.Equal(t, "ok", decode[map[string]string](t, w)["status"])

	require.NoError(t, te.wh.Close())
	w = te.get(t, "/api/v1/health")
	assertStatus(t, w, http.StatusServiceUnavailable)
	assert.Equal(t, "unavailable", decode[map[string]string](t, w)["status"])
}

func TestCORSHeaders(t *testing.T) {
	te := setup(t)

	w := te.get(t, "/api/v1/dashboards")
	cors := w.Header().Get("Access-Control-Allow-Origin")
	if cors != "*" {
		t.Fatalf("expected CORS *, got %q", cors)
	}
	methods := w.Header().Get("Access-Control-Allow-Methods")
	if !strings.Contains(methods, "GET") {
		t.Errorf("Allow-Methods %q missing GET", methods)
	}
}

func TestGetVersion(t *testing.T) {
	v := server.VersionInfo{
		Version:   "v1.2.3",
		Commit:    "abc1234",
		BuildDate: "2025-01-15T00:00:00Z",
	}
	te := setupWithServerOpts(t, []server.Option{
		server.WithVersion(v),
	})

	w := te.get(t, "/api/v1/version")
	assertStatus(t, w, http.StatusOK)

	resp := decode[server.VersionInfo](t, w)
	if resp != v {
		t.Errorf("version = %+v, want %+v", resp, v)
	}
}

func TestListenAndServe(t *testing.T) {
	te := setup(t)
	te.seedEncounters(t)
	base := te.listenAndServe(t)

	resp, err := http.Get(base + "/api/v1/dashboards/clinical/panels/kpis")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "TOTAL_ENCOUNTERS")
}

func TestFindAvailablePortSkipsOccupied(t *testing.T) {
	// Bind a port on 127.0.0.1 so FindAvailablePort must skip it.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	occupied := ln.Addr().(*net.TCPAddr).Port

	got := server.FindAvailablePort("127.0.0.1", occupied)
	if got == occupied {
		t.Errorf(
			"FindAvailablePort returned occupied port %d", occupied,
		)
	}

	// The returned port should be bindable on the same host.
	ln2, err := net.Listen(
		"tcp",
		fmt.Sprintf("127.0.0.1:%d", got),
	)
	if err != nil {
		t.Fatalf(
			"returned port %d not bindable: %v", got, err,
		)
	}
	ln2.Close()
}
