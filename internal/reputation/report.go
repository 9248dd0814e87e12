package reputation

import (
	"sort"
	"time"
)

// Quality thresholds. An author with very high reach costs more to
// misclassify, so the evidence demanded before recommending removal is
// stricter there: a larger sample and a lower score bar.
const (
	highFollowerThreshold = 100000
	highFollowerMinSample = 10

	highQualityPassRate = 0.7
	lowQualityPassRate  = 0.3

	removeSampleHighFollower = 15
	removeScoreHighFollower  = 2.0
	removeSampleDefault      = 8
	removeScoreDefault       = 3.0
)

// AuthorSummary is one author's line in the quality report.
type AuthorSummary struct {
	Handle      string    `json:"username"`
	DisplayName string    `json:"displayname"`
	Followers   int       `json:"followers"`
	Total       int       `json:"total_posts"`
	Passed      int       `json:"passed_posts"`
	Rejected    int       `json:"rejected_posts"`
	PassRate    float64   `json:"pass_rate"`
	AvgScore    float64   `json:"avg_score"`
	RecentAvg   float64   `json:"recent_avg_score"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
}

// Report is the author quality report for one generation.
type Report struct {
	GeneratedAt     time.Time       `json:"generated_at"`
	TotalAuthors    int             `json:"total_authors"`
	HighQuality     []AuthorSummary `json:"high_quality_authors"`
	LowQuality      []AuthorSummary `json:"low_quality_authors"`
	RecommendRemove []AuthorSummary `json:"recommend_remove"`
	AllAuthors      []AuthorSummary `json:"all_authors"`
}

// BuildReport classifies every author with a large enough sample. The
// required sample is highFollowerMinSample for high-reach authors and
// minSample for everyone else. The report is pure computation over the
// store; stats are never mutated here.
func (s *Store) BuildReport(minSample int) *Report {
	report := &Report{GeneratedAt: time.Now()}

	for handle, rec := range s.authors {
		required := minSample
		if rec.Followers >= highFollowerThreshold {
			required = highFollowerMinSample
		}
		if rec.Total < required {
			continue
		}

		summary := AuthorSummary{
			Handle:      handle,
			DisplayName: rec.DisplayName,
			Followers:   rec.Followers,
			Total:       rec.Total,
			Passed:      rec.Passed,
			Rejected:    rec.Rejected,
			PassRate:    rec.PassRate(),
			AvgScore:    float64(rec.TotalScore) / float64(rec.Total),
			RecentAvg:   rec.RecentAvg(),
			FirstSeen:   rec.FirstSeen,
			LastSeen:    rec.LastSeen,
		}
		report.AllAuthors = append(report.AllAuthors, summary)

		switch {
		case summary.PassRate >= highQualityPassRate:
			report.HighQuality = append(report.HighQuality, summary)
		case summary.PassRate <= lowQualityPassRate:
			report.LowQuality = append(report.LowQuality, summary)
			if recommendRemove(rec) {
				report.RecommendRemove = append(report.RecommendRemove, summary)
			}
		}
	}

	sort.Slice(report.HighQuality, func(i, j int) bool {
		return report.HighQuality[i].PassRate > report.HighQuality[j].PassRate
	})
	sort.Slice(report.LowQuality, func(i, j int) bool {
		return report.LowQuality[i].PassRate < report.LowQuality[j].PassRate
	})
	sort.Slice(report.RecommendRemove, func(i, j int) bool {
		return report.RecommendRemove[i].RecentAvg < report.RecommendRemove[j].RecentAvg
	})
	sort.Slice(report.AllAuthors, func(i, j int) bool {
		return report.AllAuthors[i].PassRate > report.AllAuthors[j].PassRate
	})

	report.TotalAuthors = len(report.AllAuthors)
	return report
}

// recommendRemove applies the asymmetric removal evidence bar.
func recommendRemove(rec *Record) bool {
	if rec.Followers >= highFollowerThreshold {
		return rec.Total >= removeSampleHighFollower && rec.RecentAvg() < removeScoreHighFollower
	}
	return rec.Total >= removeSampleDefault && rec.RecentAvg() < removeScoreDefault
}
