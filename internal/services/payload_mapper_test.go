package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"renovation-service/internal/models"
)

func TestRiskLevel_Thresholds(t *testing.T) {
	m := NewPayloadMapper(31, 61)

	assert.Equal(t, models.SeverityLow, m.RiskLevel(0))
	assert.Equal(t, models.SeverityLow, m.RiskLevel(30))
	assert.Equal(t, models.SeverityMid, m.RiskLevel(31))
	assert.Equal(t, models.SeverityMid, m.RiskLevel(60))
	assert.Equal(t, models.SeverityHigh, m.RiskLevel(61))
	assert.Equal(t, models.SeverityHigh, m.RiskLevel(100))
}

func TestNewPayloadMapper_DefaultThresholds(t *testing.T) {
	m := NewPayloadMapper(0, -5)
	assert.Equal(t, models.SeverityMid, m.RiskLevel(31))
	assert.Equal(t, models.SeverityHigh, m.RiskLevel(61))
}

func TestMap_QuoteStyle(t *testing.T) {
	m := NewPayloadMapper(31, 61)
	result := m.Map(map[string]interface{}{
		"risk_score": float64(72),
		"high_risk_items": []interface{}{
			map[string]interface{}{"item": "人工费重复计价", "description": "水电与泥瓦均含打孔费"},
		},
		"warning_items": []interface{}{"辅材品牌未注明"},
		"suggestions":   []interface{}{"要求明细到单项"},
	})

	assert.Equal(t, models.SeverityHigh, result.Severity)
	assert.Equal(t, models.ResultStatusNeedRectify, result.ResultStatus)
	require.Len(t, result.Issues, 2)
	assert.Equal(t, "人工费重复计价", result.Issues[0].Title)
	assert.Equal(t, models.SeverityHigh, result.Issues[0].Severity)
	assert.Equal(t, models.SeverityWarning, result.Issues[1].Severity)
	assert.Equal(t, []string{"要求明细到单项"}, result.Suggestions)
	assert.NotEmpty(t, result.ResultJSON)
}

func TestMap_QuoteStyle_NoHighRiskPasses(t *testing.T) {
	m := NewPayloadMapper(31, 61)
	result := m.Map(map[string]interface{}{
		"risk_score":    float64(12),
		"warning_items": []interface{}{"主材单价略高于市场价"},
	})

	assert.Equal(t, models.SeverityLow, result.Severity)
	assert.Equal(t, models.ResultStatusPassed, result.ResultStatus)
}

func TestMap_ContractStyle(t *testing.T) {
	m := NewPayloadMapper(31, 61)
	result := m.Map(map[string]interface{}{
		"risk_level": "high",
		"risk_items": []interface{}{
			map[string]interface{}{"clause": "第8条", "reason": "违约金比例过高"},
		},
		"unfair_terms": []interface{}{"单方面解除条款"},
	})

	assert.Equal(t, models.SeverityHigh, result.Severity)
	assert.Equal(t, models.ResultStatusNeedRectify, result.ResultStatus)
	require.Len(t, result.Issues, 2)
	assert.Equal(t, models.SeverityHigh, result.Issues[1].Severity, "unfair terms are always high")
}

func TestMap_ContractStyle_LowRisk(t *testing.T) {
	m := NewPayloadMapper(31, 61)
	result := m.Map(map[string]interface{}{
		"risk_level": "low",
		"risk_items": []interface{}{"付款节点略密"},
	})

	assert.Equal(t, models.SeverityLow, result.Severity)
	assert.Equal(t, models.ResultStatusPassed, result.ResultStatus)
}

func TestMap_AcceptanceStyle(t *testing.T) {
	m := NewPayloadMapper(31, 61)

	// Passed with no high issue
	result := m.Map(map[string]interface{}{
		"acceptance_status": "通过",
		"issues": []interface{}{
			map[string]interface{}{"title": "局部空鼓", "severity": "low"},
		},
	})
	assert.Equal(t, models.ResultStatusPassed, result.ResultStatus)
	assert.Equal(t, models.SeverityLow, result.Severity)

	// 通过 downgraded by a high issue
	result = m.Map(map[string]interface{}{
		"acceptance_status": "通过",
		"issues": []interface{}{
			map[string]interface{}{"title": "防水层破损", "severity": "高"},
		},
	})
	assert.Equal(t, models.ResultStatusNeedRectify, result.ResultStatus)
	assert.Equal(t, models.SeverityHigh, result.Severity)

	// Explicit fail
	result = m.Map(map[string]interface{}{
		"acceptance_status": "不通过",
		"issues": []interface{}{
			map[string]interface{}{"title": "电线未穿管", "severity": "high"},
		},
	})
	assert.Equal(t, models.ResultStatusFailed, result.ResultStatus)
}

func TestMap_RawTextFallback(t *testing.T) {
	m := NewPayloadMapper(31, 61)
	result := m.Map(map[string]interface{}{
		"raw_text": "模型返回了无法解析的内容",
	})

	assert.Equal(t, models.SeverityLow, result.Severity)
	assert.Equal(t, models.ResultStatusNeedRectify, result.ResultStatus)
	require.Len(t, result.Issues, 1)
	assert.Equal(t, "分析结果无法解析", result.Issues[0].Title)
	assert.NotEmpty(t, result.Suggestions)
}

func TestMap_DispatchPrecedence(t *testing.T) {
	m := NewPayloadMapper(31, 61)

	// risk_score wins over risk_level when both are present
	result := m.Map(map[string]interface{}{
		"risk_score": float64(10),
		"risk_level": "high",
	})
	assert.Equal(t, models.SeverityLow, result.Severity)
}

func TestNormalizeSeverity(t *testing.T) {
	cases := map[string]string{
		"high":    models.SeverityHigh,
		"高":       models.SeverityHigh,
		"mid":     models.SeverityMid,
		"medium":  models.SeverityMid,
		"中":       models.SeverityMid,
		"low":     models.SeverityLow,
		"低":       models.SeverityLow,
		"warning": models.SeverityWarning,
		"unknown": "",
		"":        "",
	}
	for input, want := range cases {
		assert.Equal(t, want, normalizeSeverity(input), "input %q", input)
	}
}

func TestCollectIssues_TitleFallsBackToDescription(t *testing.T) {
	issues := collectIssues([]interface{}{
		map[string]interface{}{"description": "墙面裂缝"},
		map[string]interface{}{}, // dropped: nothing usable
	}, models.SeverityLow)

	require.Len(t, issues, 1)
	assert.Equal(t, "墙面裂缝", issues[0].Title)
	assert.Empty(t, issues[0].Description)
}
