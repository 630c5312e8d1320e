package dashboard

import (
	"github.com/medicore/medidash/internal/query"
)

var (
	encountersTable = query.Table{Schema: query.SchemaClinical, Name: "ENCOUNTERS"}
	labResultsTable = query.Table{Schema: query.SchemaClinical, Name: "LAB_RESULTS"}
)

// encounterSpec is the shared shape of every ENCOUNTERS panel.
func encounterSpec(name string) query.Spec {
	return query.Spec{
		Name:       name,
		Table:      encountersTable,
		Alias:      "e",
		DateColumn: "e.ADMISSION_DATE",
		Filters: map[query.Dimension]string{
			query.Department:    "e.DEPARTMENT_NAME",
			query.EncounterType: "e.ENCOUNTER_TYPE",
		},
	}
}

func monthly(s query.Spec, monthCol string, cols ...query.Column) query.Spec {
	s.Select = append([]query.Column{
		{Name: "MONTH_KEY", Expr: monthCol, Kind: query.Month},
	}, cols...)
	s.GroupBy = monthCol
	s.OrderBy = []query.Order{query.Asc("MONTH_KEY")}
	return s
}

var (
	inpatient  = query.CountIf(query.IsTrue("e.IS_INPATIENT_FLAG"))
	outpatient = query.CountIf(query.IsTrue("e.IS_OUTPATIENT_FLAG"))
	avgLOS     = query.Avg("e.LENGTH_OF_STAY_DAYS")
)

var clinicalKPIs = func() query.Spec {
	s := encounterSpec("encounter_kpis")
	s.Select = []query.Column{
		{Name: "TOTAL_ENCOUNTERS", Expr: query.Count(), Kind: query.Integer},
		{Name: "INPATIENT_ENCOUNTERS", Expr: inpatient, Kind: query.Integer},
		{Name: "AVG_LOS", Expr: avgLOS, Kind: query.Decimal},
	}
	return s
}()

var encounterTrend = monthly(
	encounterSpec("encounter_trend"), "e.ENCOUNTER_MONTH",
	query.Column{Name: "TOTAL_ENCOUNTERS", Expr: query.Count(), Kind: query.Integer},
	query.Column{Name: "INPATIENT", Expr: inpatient, Kind: query.Integer},
	query.Column{Name: "OUTPATIENT", Expr: outpatient, Kind: query.Integer},
)

var departmentWorkload = func() query.Spec {
	s := encounterSpec("department_workload")
	s.Select = []query.Column{
		{
			Name: "DEPARTMENT_NAME",
			Expr: query.Label("e.DEPARTMENT_NAME", "Unknown"),
			Kind: query.Category,
		},
		{Name: "ENCOUNTER_COUNT", Expr: query.Count(), Kind: query.Integer},
	}
	s.GroupBy = "e.DEPARTMENT_NAME"
	s.OrderBy = []query.Order{
		query.Desc("ENCOUNTER_COUNT"), query.Asc("DEPARTMENT_NAME"),
	}
	s.Limit = query.TopN
	return s
}()

var qualityTrend = monthly(
	encounterSpec("quality_trend"), "e.ENCOUNTER_MONTH",
	query.Column{Name: "AVG_LOS", Expr: avgLOS, Kind: query.Decimal},
)

// abnormalLabTrend reads lab results; only the department filter
// reaches it, through the encounter join.
var abnormalLabTrend = monthly(query.Spec{
	Name:  "abnormal_lab_trend",
	Table: labResultsTable,
	Alias: "lr",
	Joins: []query.Join{{
		Table: encountersTable,
		Alias: "e",
		On:    "lr.ENCOUNTER_ID = e.ENCOUNTER_ID",
	}},
	DateColumn: "lr.RESULT_DATE",
	Filters: map[query.Dimension]string{
		query.Department: "e.DEPARTMENT_NAME",
	},
}, "lr.RESULT_MONTH", query.Column{
	Name: "ABNORMAL_RATE",
	Expr: query.Rate(
		"SUM(CASE WHEN "+query.IsTrue("lr.IS_ABNORMAL")+" THEN 1 ELSE 0 END)",
		query.Count(),
	),
	Kind: query.Decimal,
})

var clinical = Dashboard{
	ID:    "clinical",
	Title: "MediCore Clinical Operations Dashboard",
	Filters: []OptionSource{
		{query.Department, encountersTable, "DEPARTMENT_NAME"},
		{query.EncounterType, encountersTable, "ENCOUNTER_TYPE"},
	},
	Panels: []Panel{
		{
			ID:        "kpis",
			Title:     "Key Performance Indicators",
			Statement: clinicalKPIs,
			Chart:     Chart{Type: "metric"},
		},
		{
			ID:        "encounter_trend",
			Title:     "Encounter Trend",
			Statement: encounterTrend,
			Chart: Chart{
				Type: "line", X: "MONTH_KEY",
				Series:  []string{"INPATIENT", "OUTPATIENT"},
				VarName: "Type", ValueName: "Count",
			},
			NoData: "No encounter trend data available for the selected filters.",
		},
		{
			ID:        "department_workload",
			Title:     "Department Workload (Top 10)",
			Statement: departmentWorkload,
			Chart: Chart{
				Type: "bar", X: "DEPARTMENT_NAME",
				Series: []string{"ENCOUNTER_COUNT"},
			},
			NoData: "No department workload data available for the selected filters.",
		},
		{
			ID:        "quality_trend",
			Title:     "Clinical Quality Trends - Average Length of Stay",
			Statement: qualityTrend,
			Chart: Chart{
				Type: "line", X: "MONTH_KEY", Series: []string{"AVG_LOS"},
			},
			NoData: "No clinical quality data available for the selected filters.",
		},
		{
			ID:        "abnormal_lab_trend",
			Title:     "Lab Monitoring - Abnormal Results Rate (%)",
			Statement: abnormalLabTrend,
			Chart: Chart{
				Type: "line", X: "MONTH_KEY", Series: []string{"ABNORMAL_RATE"},
			},
			NoData: "No lab monitoring data available for the selected filters.",
		},
	},
}
