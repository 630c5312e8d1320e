package fixture

import (
	"context"
)

// Encounter is one CLINICAL.ENCOUNTERS row. Nil pointers are
// written as NULL.
type Encounter struct {
	ID         string
	PatientID  string
	Department *string
	Type       string
	Date       string // YYYY-MM-DD
	Month      string // first of month; derived from Date when empty
	Inpatient  bool
	Outpatient bool
	LOS        *float64
}

// LabResult is one CLINICAL.LAB_RESULTS row.
type LabResult struct {
	ID          string
	EncounterID string
	Date        string
	Month       string
	Abnormal    bool
}

// Claim is one BILLING.CLAIMS row.
type Claim struct {
	ID     string
	Payer  *string
	Status string
}

// Department is one REFERENCE.DIM_DEPARTMENTS row.
type Department struct {
	ID   int64
	Name string
}

// ClaimLine is one BILLING.CLAIM_LINE_ITEMS row.
type ClaimLine struct {
	ID           string
	ClaimID      string
	DepartmentID *int64
	Procedure    *string
	Date         string
	Month        string
	Billed       float64
	NetRevenue   float64
	Denied       bool
}

// PatientMonth is one EXECUTIVE.KPI_PATIENT_VOLUME row.
type PatientMonth struct {
	Month      string
	Patients   int64
	Encounters int64
}

// RevenueMonth is one EXECUTIVE.KPI_REVENUE_SUMMARY row.
type RevenueMonth struct {
	Month      string
	Billed     float64
	Paid       float64
	NetRevenue float64
	DenialRate *float64
}

// ClinicalMonth is one EXECUTIVE.KPI_CLINICAL_OUTCOMES row.
type ClinicalMonth struct {
	Month       string
	AvgLOS      *float64
	Readmission *float64
}

// monthOf returns the first day of the month of a YYYY-MM-DD date.
func monthOf(date, month string) string {
	if month != "" || len(date) < 7 {
		return month
	}
	return date[:7] + "-01"
}

func (w *Writer) InsertEncounters(ctx context.Context, rows ...Encounter) error {
	vals := make([][]any, len(rows))
	for i, r := range rows {
		vals[i] = []any{
			r.ID, r.PatientID, r.Department, r.Type,
			r.Date, monthOf(r.Date, r.Month),
			r.Inpatient, r.Outpatient, r.LOS,
		}
	}
	return w.insert(ctx, Encounters, []string{
		"ENCOUNTER_ID", "PATIENT_ID", "DEPARTMENT_NAME",
		"ENCOUNTER_TYPE", "ADMISSION_DATE", "ENCOUNTER_MONTH",
		"IS_INPATIENT_FLAG", "IS_OUTPATIENT_FLAG",
		"LENGTH_OF_STAY_DAYS",
	}, vals)
}

func (w *Writer) InsertLabResults(ctx context.Context, rows ...LabResult) error {
	vals := make([][]any, len(rows))
	for i, r := range rows {
		vals[i] = []any{
			r.ID, r.EncounterID, r.Date, monthOf(r.Date, r.Month),
			r.Abnormal,
		}
	}
	return w.insert(ctx, LabResults, []string{
		"LAB_RESULT_ID", "ENCOUNTER_ID", "RESULT_DATE",
		"RESULT_MONTH", "IS_ABNORMAL",
	}, vals)
}

func (w *Writer) InsertClaims(ctx context.Context, rows ...Claim) error {
	vals := make([][]any, len(rows))
	for i, r := range rows {
		vals[i] = []any{r.ID, r.Payer, r.Status}
	}
	return w.insert(ctx, Claims, []string{
		"CLAIM_ID", "PAYER_TYPE", "CLAIM_STATUS",
	}, vals)
}

func (w *Writer) InsertDepartments(ctx context.Context, rows ...Department) error {
	vals := make([][]any, len(rows))
	for i, r := range rows {
		vals[i] = []any{r.ID, r.Name}
	}
	return w.insert(ctx, Departments, []string{
		"DEPARTMENT_ID", "DEPARTMENT_NAME",
	}, vals)
}

func (w *Writer) InsertClaimLines(ctx context.Context, rows ...ClaimLine) error {
	vals := make([][]any, len(rows))
	for i, r := range rows {
		denied := 0
		if r.Denied {
			denied = 1
		}
		vals[i] = []any{
			r.ID, r.ClaimID, r.DepartmentID, r.Procedure,
			r.Date, monthOf(r.Date, r.Month),
			r.Billed, r.NetRevenue, denied,
		}
	}
	return w.insert(ctx, ClaimLines, []string{
		"LINE_ID", "CLAIM_ID", "DEPARTMENT_ID", "PROCEDURE_CODE",
		"SERVICE_DATE", "SERVICE_MONTH", "LINE_BILLED_AMOUNT",
		"LINE_NET_REVENUE", "DENIAL_FLAG_NUMERIC",
	}, vals)
}

func (w *Writer) InsertPatientVolume(ctx context.Context, rows ...PatientMonth) error {
	vals := make([][]any, len(rows))
	for i, r := range rows {
		vals[i] = []any{r.Month, r.Patients, r.Encounters}
	}
	return w.insert(ctx, PatientVolume, []string{
		"MONTH_KEY", "TOTAL_DISTINCT_PATIENTS", "TOTAL_ENCOUNTERS",
	}, vals)
}

func (w *Writer) InsertRevenueSummary(ctx context.Context, rows ...RevenueMonth) error {
	vals := make([][]any, len(rows))
	for i, r := range rows {
		vals[i] = []any{
			r.Month, r.Billed, r.Paid, r.NetRevenue, r.DenialRate,
		}
	}
	return w.insert(ctx, RevenueSummary, []string{
		"MONTH_KEY", "TOTAL_BILLED_AMOUNT", "TOTAL_PAID_AMOUNT",
		"TOTAL_NET_REVENUE", "DENIAL_RATE_PERCENT",
	}, vals)
}

func (w *Writer) InsertClinicalOutcomes(ctx context.Context, rows ...ClinicalMonth) error {
	vals := make([][]any, len(rows))
	for i, r := range rows {
		vals[i] = []any{r.Month, r.AvgLOS, r.Readmission}
	}
	return w.insert(ctx, ClinicalOutcomes, []string{
		"MONTH_KEY", "AVERAGE_LENGTH_OF_STAY",
		"READMISSION_RATE_PERCENT",
	}, vals)
}
