package dashboard

import (
	"github.com/medicore/medidash/internal/query"
)

var (
	patientVolumeTable = query.Table{
		Schema: query.SchemaExecutive, Name: "KPI_PATIENT_VOLUME",
	}
	revenueSummaryTable = query.Table{
		Schema: query.SchemaExecutive, Name: "KPI_REVENUE_SUMMARY",
	}
	clinicalOutcomesTable = query.Table{
		Schema: query.SchemaExecutive, Name: "KPI_CLINICAL_OUTCOMES",
	}
)

// kpiSpec reads a monthly pre-aggregated table. Executive panels
// honor only the date range.
func kpiSpec(name string, t query.Table, cols ...query.Column) query.Spec {
	return query.Spec{
		Name:       name,
		Table:      t,
		DateColumn: "MONTH_KEY",
		Select:     cols,
	}
}

// kpiTrend lists one row per month, oldest first.
func kpiTrend(name string, t query.Table, cols ...query.Column) query.Spec {
	s := kpiSpec(name, t, append([]query.Column{
		{Name: "MONTH_KEY", Expr: "MONTH_KEY", Kind: query.Month},
	}, cols...)...)
	s.OrderBy = []query.Order{query.Asc("MONTH_KEY")}
	return s
}

func withColumn(s query.Spec, c query.Column) query.Spec {
	s.Select = append(s.Select[:len(s.Select):len(s.Select)], c)
	return s
}

var snapshot = query.Composite{
	Name: "executive_snapshot",
	Parts: []query.Spec{
		kpiSpec("patient_data", patientVolumeTable,
			query.Column{
				Name: "TOTAL_PATIENTS", Kind: query.Integer,
				Expr: query.Sum("TOTAL_DISTINCT_PATIENTS"),
			},
			query.Column{
				Name: "TOTAL_ENCOUNTERS", Kind: query.Integer,
				Expr: query.Sum("TOTAL_ENCOUNTERS"),
			},
		),
		kpiSpec("revenue_data", revenueSummaryTable,
			query.Column{
				Name: "TOTAL_NET_REVENUE", Kind: query.Decimal,
				Expr: query.Sum("TOTAL_NET_REVENUE"),
			},
			query.Column{
				Name: "AVG_DENIAL_RATE", Kind: query.Decimal,
				Expr: query.Avg("DENIAL_RATE_PERCENT"),
			},
		),
		kpiSpec("clinical_data", clinicalOutcomesTable,
			query.Column{
				Name: "AVG_READMISSION_RATE", Kind: query.Decimal,
				Expr: query.Avg("READMISSION_RATE_PERCENT"),
			},
			query.Column{
				Name: "AVG_LOS", Kind: query.Decimal,
				Expr: query.Avg("AVERAGE_LENGTH_OF_STAY"),
			},
		),
	},
}

var patientTrend = kpiTrend("patient_trend", patientVolumeTable,
	query.Column{
		Name: "TOTAL_PATIENTS", Kind: query.Integer,
		Expr: query.Value("TOTAL_DISTINCT_PATIENTS"),
	},
	query.Column{
		Name: "TOTAL_ENCOUNTERS", Kind: query.Integer,
		Expr: query.Value("TOTAL_ENCOUNTERS"),
	},
)

var patientGrowth = withColumn(patientTrend, query.Column{
	Name: "PATIENT_GROWTH_PCT", Kind: query.Decimal,
	Expr: query.Growth("TOTAL_DISTINCT_PATIENTS", "MONTH_KEY"),
})

var executiveRevenueTrend = kpiTrend("revenue_trend", revenueSummaryTable,
	query.Column{
		Name: "BILLED", Kind: query.Decimal,
		Expr: query.Value("TOTAL_BILLED_AMOUNT"),
	},
	query.Column{
		Name: "PAID", Kind: query.Decimal,
		Expr: query.Value("TOTAL_PAID_AMOUNT"),
	},
	query.Column{
		Name: "NET_REVENUE", Kind: query.Decimal,
		Expr: query.Value("TOTAL_NET_REVENUE"),
	},
)

var revenueGrowth = withColumn(executiveRevenueTrend, query.Column{
	Name: "REVENUE_GROWTH_PCT", Kind: query.Decimal,
	Expr: query.Growth("TOTAL_NET_REVENUE", "MONTH_KEY"),
})

var clinicalTrend = kpiTrend("clinical_trend", clinicalOutcomesTable,
	query.Column{
		Name: "AVG_LOS", Kind: query.Decimal,
		Expr: query.Value("AVERAGE_LENGTH_OF_STAY"),
	},
	query.Column{
		Name: "READMISSION_RATE", Kind: query.Decimal,
		Expr: query.Value("READMISSION_RATE_PERCENT"),
	},
)

var executive = Dashboard{
	ID:     "executive",
	Title:  "MediCore Executive Dashboard",
	Growth: true,
	Panels: []Panel{
		{
			ID:        "snapshot",
			Title:     "Executive Snapshot",
			Statement: snapshot,
			Chart:     Chart{Type: "metric"},
		},
		{
			ID:        "patient_trend",
			Title:     "Monthly Patient Volume",
			Statement: patientTrend,
			Growth:    patientGrowth,
			Chart: Chart{
				Type: "line", X: "MONTH_KEY", Series: []string{"TOTAL_PATIENTS"},
			},
			NoData: "No patient data available.",
		},
		{
			ID:        "revenue_trend",
			Title:     "Monthly Net Revenue",
			Statement: executiveRevenueTrend,
			Growth:    revenueGrowth,
			Chart: Chart{
				Type: "bar", X: "MONTH_KEY",
				Series:  []string{"BILLED", "PAID", "NET_REVENUE"},
				VarName: "Type", ValueName: "Amount",
			},
			NoData: "No revenue data available.",
		},
		{
			ID:        "clinical_trend",
			Title:     "Efficiency Indicators",
			Statement: clinicalTrend,
			Chart: Chart{
				Type: "line", X: "MONTH_KEY",
				Series: []string{"AVG_LOS", "READMISSION_RATE"},
			},
			NoData: "No clinical efficiency data available.",
		},
	},
}
