package fixture

import (
	"context"
	"fmt"
	"time"
)

var (
	demoDepartments = []string{
		"Cardiology", "Emergency", "Neurology",
		"Oncology", "Orthopedics", "Pediatrics", "Radiology",
	}
	demoTypes    = []string{"Emergency", "Inpatient", "Observation", "Outpatient"}
	demoPayers   = []string{"Commercial", "Medicaid", "Medicare", "Self-Pay"}
	demoStatuses = []string{"Denied", "Paid", "Pending", "Submitted"}
	demoCodes    = []string{
		"70450", "71046", "74177", "80053", "85025", "93000",
		"93306", "97110", "99213", "99214", "99223", "99285",
	}
)

// DemoStats counts the rows Demo wrote.
type DemoStats struct {
	Encounters int
	LabResults int
	ClaimLines int
	Months     int
}

// Demo fills the warehouse with a deterministic year of activity.
// perMonth encounters are generated for each month of year.
func Demo(
	ctx context.Context, w *Writer, year, perMonth int,
) (DemoStats, error) {
	var stats DemoStats

	depts := make([]Department, len(demoDepartments))
	for i, name := range demoDepartments {
		depts[i] = Department{ID: int64(i + 1), Name: name}
	}
	if err := w.InsertDepartments(ctx, depts...); err != nil {
		return stats, err
	}

	var (
		encs     []Encounter
		labs     []LabResult
		claims   []Claim
		lines    []ClaimLine
		patients []PatientMonth
		revenue  []RevenueMonth
		clinical []ClinicalMonth
	)
	for m := range 12 {
		first := time.Date(year, time.Month(m+1), 1, 0, 0, 0, 0, time.UTC)
		days := first.AddDate(0, 1, -1).Day()
		month := first.Format("2006-01-02")

		var billed, net float64
		var denied, inpatient, los int
		n := perMonth + (m*7)%(perMonth/2+1)
		for i := range n {
			seq := m*1000 + i
			date := first.AddDate(0, 0, (i*3)%days).Format("2006-01-02")
			typ := demoTypes[(seq*5)%len(demoTypes)]
			dept := demoDepartments[(seq*3+m)%len(demoDepartments)]
			enc := Encounter{
				ID:         fmt.Sprintf("E%d-%05d", year, seq),
				PatientID:  fmt.Sprintf("P%04d", (seq*37)%(perMonth*4+1)),
				Department: Ptr(dept),
				Type:       typ,
				Date:       date,
				Inpatient:  typ == "Inpatient",
				Outpatient: typ == "Outpatient",
			}
			if enc.Inpatient {
				stay := float64(1+(seq%9)) + float64(seq%4)*0.25
				enc.LOS = Ptr(stay)
				inpatient++
				los += 1 + seq%9
			}
			encs = append(encs, enc)

			for j := range 1 + seq%3 {
				labs = append(labs, LabResult{
					ID:          fmt.Sprintf("L%d-%05d-%d", year, seq, j),
					EncounterID: enc.ID,
					Date:        date,
					Abnormal:    (seq+j)%4 == 0,
				})
			}

			claimID := fmt.Sprintf("C%d-%05d", year, seq)
			status := demoStatuses[(seq*7)%len(demoStatuses)]
			claims = append(claims, Claim{
				ID:     claimID,
				Payer:  Ptr(demoPayers[(seq*11)%len(demoPayers)]),
				Status: status,
			})
			for j := range 1 + seq%2 {
				amount := float64(150+(seq*53+j*31)%2400) + 0.5
				isDenied := status == "Denied"
				netRev := amount * 0.62
				if isDenied {
					netRev = 0
					denied++
				}
				deptID := int64((seq*3+m)%len(demoDepartments) + 1)
				lines = append(lines, ClaimLine{
					ID:           fmt.Sprintf("%s-%d", claimID, j),
					ClaimID:      claimID,
					DepartmentID: Ptr(deptID),
					Procedure:    Ptr(demoCodes[(seq+j*5)%len(demoCodes)]),
					Date:         date,
					Billed:       amount,
					NetRevenue:   netRev,
					Denied:       isDenied,
				})
				billed += amount
				net += netRev
			}
		}

		patients = append(patients, PatientMonth{
			Month:      month,
			Patients:   int64(n * 3 / 4),
			Encounters: int64(n),
		})
		revenue = append(revenue, RevenueMonth{
			Month:      month,
			Billed:     billed,
			Paid:       billed * 0.7,
			NetRevenue: net,
			DenialRate: Ptr(float64(denied) * 100 / float64(max(n, 1))),
		})
		cm := ClinicalMonth{Month: month, Readmission: Ptr(8 + float64(m%5))}
		if inpatient > 0 {
			cm.AvgLOS = Ptr(float64(los) / float64(inpatient))
		}
		clinical = append(clinical, cm)
	}

	if err := w.InsertEncounters(ctx, encs...); err != nil {
		return stats, err
	}
	if err := w.InsertLabResults(ctx, labs...); err != nil {
		return stats, err
	}
	if err := w.InsertClaims(ctx, claims...); err != nil {
		return stats, err
	}
	if err := w.InsertClaimLines(ctx, lines...); err != nil {
		return stats, err
	}
	if err := w.InsertPatientVolume(ctx, patients...); err != nil {
		return stats, err
	}
	if err := w.InsertRevenueSummary(ctx, revenue...); err != nil {
		return stats, err
	}
	if err := w.InsertClinicalOutcomes(ctx, clinical...); err != nil {
		return stats, err
	}

	stats = DemoStats{
		Encounters: len(encs),
		LabResults: len(labs),
		ClaimLines: len(lines),
		Months:     12,
	}
	return stats, nil
}
