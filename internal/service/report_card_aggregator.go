package service

import (
	"math"
	"sort"
	"strconv"

	"github.com/noah-isme/school-admin-api/internal/models"
)

// cohortResult is the computed average of one enrollment before persistence.
type cohortResult struct {
	EnrollmentID string
	Average      float64
	Rank         int
}

// roundHalfUp rounds v to two decimals, halves going up. The scaled value is
// first normalised to nine decimals so that 1.005 rounds to 1.01.
func roundHalfUp(v float64) float64 {
	scaled, err := strconv.ParseFloat(strconv.FormatFloat(v*100, 'f', 9, 64), 64)
	if err != nil {
		scaled = v * 100
	}
	return math.Floor(scaled+0.5) / 100
}

// weightedAverage returns Σ(value × coefficient) / Σ(coefficient) over the
// graded subjects of coefficients, rounded half-up; 0 when nothing is graded.
// Grades of subject levels absent from coefficients are ignored.
func weightedAverage(grades []models.Grade, coefficients map[string]int) float64 {
	var weighted float64
	var weights int
	for _, g := range grades {
		coefficient, ok := coefficients[g.SubjectLevelID]
		if !ok {
			continue
		}
		weighted += g.Value * float64(coefficient)
		weights += coefficient
	}
	if weights == 0 {
		return 0
	}
	return roundHalfUp(weighted / float64(weights))
}

// rankCohort orders results by average descending and assigns 1-based ranks.
// Equal averages keep their input order.
func rankCohort(results []cohortResult) []cohortResult {
	ranked := make([]cohortResult, len(results))
	copy(ranked, results)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Average > ranked[j].Average
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

// aggregateCohort computes and ranks the averages of enrollments, which must be
// in insertion order.
func aggregateCohort(enrollments []models.Enrollment, configs []models.SubjectLevelDetail, grades []models.Grade) []cohortResult {
	coefficients := make(map[string]int, len(configs))
	for _, c := range configs {
		coefficients[c.ID] = c.Coefficient
	}
	byEnrollment := make(map[string][]models.Grade, len(enrollments))
	for _, g := range grades {
		byEnrollment[g.EnrollmentID] = append(byEnrollment[g.EnrollmentID], g)
	}

	results := make([]cohortResult, 0, len(enrollments))
	for _, e := range enrollments {
		results = append(results, cohortResult{
			EnrollmentID: e.ID,
			Average:      weightedAverage(byEnrollment[e.ID], coefficients),
		})
	}
	return rankCohort(results)
}

func roundStatistics(stats models.GradeStatistics) models.GradeStatistics {
	stats.ClassAverage = roundHalfUp(stats.ClassAverage)
	return stats
}
