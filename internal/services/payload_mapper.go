package services

import (
	"encoding/json"

	"renovation-service/internal/models"
)

// AnalysisIssue is one normalized finding of an AI analysis
type AnalysisIssue struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Severity    string `json:"severity"`
	Location    string `json:"location,omitempty"`
}

// MappedResult is the normalized form of any AI analysis payload
type MappedResult struct {
	Severity     string
	ResultStatus string
	Issues       []AnalysisIssue
	Suggestions  []string
	ResultJSON   models.JSONB
}

// PayloadMapper normalizes the AI backend's heterogeneous response shapes
// into one deterministic result. Thresholds classify numeric risk scores.
type PayloadMapper struct {
	riskScoreMid  int
	riskScoreHigh int
}

// NewPayloadMapper creates a mapper with the given risk score thresholds
func NewPayloadMapper(riskScoreMid, riskScoreHigh int) *PayloadMapper {
	if riskScoreMid <= 0 {
		riskScoreMid = 31
	}
	if riskScoreHigh <= 0 {
		riskScoreHigh = 61
	}
	return &PayloadMapper{riskScoreMid: riskScoreMid, riskScoreHigh: riskScoreHigh}
}

// Map dispatches on the payload's shape: quote-style (risk_score), contract-
// style (risk_level), acceptance-style (acceptance_status) or raw text.
func (m *PayloadMapper) Map(payload map[string]interface{}) *MappedResult {
	raw, _ := json.Marshal(payload)

	var result *MappedResult
	switch {
	case hasKey(payload, "risk_score"):
		result = m.mapQuote(payload)
	case hasKey(payload, "risk_level"):
		result = m.mapContract(payload)
	case hasKey(payload, "acceptance_status"):
		result = m.mapAcceptance(payload)
	default:
		result = m.mapRawText(payload)
	}

	result.ResultJSON = models.JSONB(raw)
	return result
}

func hasKey(payload map[string]interface{}, key string) bool {
	_, ok := payload[key]
	return ok
}

// RiskLevel classifies a numeric risk score against the configured thresholds
func (m *PayloadMapper) RiskLevel(score int) string {
	switch {
	case score >= m.riskScoreHigh:
		return models.SeverityHigh
	case score >= m.riskScoreMid:
		return models.SeverityMid
	default:
		return models.SeverityLow
	}
}

func (m *PayloadMapper) mapQuote(payload map[string]interface{}) *MappedResult {
	score := toInt(payload["risk_score"])
	severity := m.RiskLevel(score)

	issues := collectIssues(payload["high_risk_items"], models.SeverityHigh)
	issues = append(issues, collectIssues(payload["warning_items"], models.SeverityWarning)...)
	hasHighRisk := false
	for _, issue := range issues {
		if issue.Severity == models.SeverityHigh {
			hasHighRisk = true
			break
		}
	}

	resultStatus := models.ResultStatusPassed
	if hasHighRisk {
		resultStatus = models.ResultStatusNeedRectify
	}
	return &MappedResult{
		Severity:     severity,
		ResultStatus: resultStatus,
		Issues:       issues,
		Suggestions:  collectStrings(payload["suggestions"]),
	}
}

func (m *PayloadMapper) mapContract(payload map[string]interface{}) *MappedResult {
	level, _ := payload["risk_level"].(string)
	severity := models.SeverityLow
	switch level {
	case models.SeverityHigh:
		severity = models.SeverityHigh
	case "medium", models.SeverityMid:
		severity = models.SeverityMid
	}

	issues := collectIssues(payload["risk_items"], severity)
	issues = append(issues, collectIssues(payload["unfair_terms"], models.SeverityHigh)...)
	hasHighRisk := false
	for _, issue := range issues {
		if issue.Severity == models.SeverityHigh {
			hasHighRisk = true
			break
		}
	}

	resultStatus := models.ResultStatusPassed
	if hasHighRisk {
		resultStatus = models.ResultStatusNeedRectify
	}
	return &MappedResult{
		Severity:     severity,
		ResultStatus: resultStatus,
		Issues:       issues,
		Suggestions:  collectStrings(payload["suggestions"]),
	}
}

func (m *PayloadMapper) mapAcceptance(payload map[string]interface{}) *MappedResult {
	status, _ := payload["acceptance_status"].(string)

	issues := collectIssues(payload["issues"], "")
	severity := models.SeverityNone
	hasHighIssue := false
	for _, issue := range issues {
		if issue.Severity == "" {
			issue.Severity = models.SeverityLow
		}
		if severityRank(issue.Severity) > severityRank(severity) {
			severity = issue.Severity
		}
		if issue.Severity == models.SeverityHigh {
			hasHighIssue = true
		}
	}

	var resultStatus string
	switch {
	case status == "通过" && !hasHighIssue:
		resultStatus = models.ResultStatusPassed
	case status == "不通过":
		resultStatus = models.ResultStatusFailed
	default:
		resultStatus = models.ResultStatusNeedRectify
	}
	return &MappedResult{
		Severity:     severity,
		ResultStatus: resultStatus,
		Issues:       issues,
		Suggestions:  collectStrings(payload["suggestions"]),
	}
}

func (m *PayloadMapper) mapRawText(payload map[string]interface{}) *MappedResult {
	text, _ := payload["raw_text"].(string)
	if len(text) > 200 {
		text = text[:200]
	}
	return &MappedResult{
		Severity:     models.SeverityLow,
		ResultStatus: models.ResultStatusNeedRectify,
		Issues: []AnalysisIssue{{
			Title:       "分析结果无法解析",
			Description: text,
			Severity:    models.SeverityLow,
		}},
		Suggestions: []string{"建议重新上传更清晰的照片后再次分析"},
	}
}

func severityRank(severity string) int {
	switch severity {
	case models.SeverityHigh:
		return 4
	case models.SeverityMid:
		return 3
	case models.SeverityWarning:
		return 2
	case models.SeverityLow:
		return 1
	default:
		return 0
	}
}

// collectIssues normalizes a payload list into issues. defaultSeverity is
// used when an entry carries no severity of its own.
func collectIssues(raw interface{}, defaultSeverity string) []AnalysisIssue {
	list, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	issues := make([]AnalysisIssue, 0, len(list))
	for _, entry := range list {
		switch v := entry.(type) {
		case string:
			if v != "" {
				issues = append(issues, AnalysisIssue{Title: v, Severity: defaultSeverity})
			}
		case map[string]interface{}:
			issue := AnalysisIssue{
				Title:       firstString(v, "title", "item", "name", "clause"),
				Description: firstString(v, "description", "detail", "reason"),
				Severity:    normalizeSeverity(firstString(v, "severity", "level")),
				Location:    firstString(v, "location", "position"),
			}
			if issue.Severity == "" {
				issue.Severity = defaultSeverity
			}
			if issue.Title == "" && issue.Description != "" {
				issue.Title = issue.Description
				issue.Description = ""
			}
			if issue.Title != "" {
				issues = append(issues, issue)
			}
		}
	}
	return issues
}

func normalizeSeverity(severity string) string {
	switch severity {
	case models.SeverityHigh, "高":
		return models.SeverityHigh
	case models.SeverityMid, "medium", "中":
		return models.SeverityMid
	case models.SeverityLow, "低":
		return models.SeverityLow
	case models.SeverityWarning:
		return models.SeverityWarning
	}
	return ""
}

func collectStrings(raw interface{}) []string {
	list, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, entry := range list {
		switch v := entry.(type) {
		case string:
			if v != "" {
				out = append(out, v)
			}
		case map[string]interface{}:
			if s := firstString(v, "suggestion", "text", "content"); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
	}
	return 0
}
