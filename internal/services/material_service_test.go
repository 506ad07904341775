package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"renovation-service/internal/models"
)

func TestExtractMaterials_ExplicitList(t *testing.T) {
	artifact := &models.ReportArtifact{
		ResultJSON: models.JSONB(`{
			"materials": [
				{"material_name": "瓷砖", "spec_brand": "800x800 马可波罗", "quantity": "60片", "category": "关键材料"},
				{"name": "美缝剂", "quantity": "10支"},
				{"spec_brand": "没有名称，应被丢弃"}
			]
		}`),
	}

	items := extractMaterials(artifact)
	require.Len(t, items, 2)
	assert.Equal(t, "瓷砖", items[0].MaterialName)
	assert.Equal(t, "800x800 马可波罗", items[0].SpecBrand)
	assert.Equal(t, "美缝剂", items[1].MaterialName)
	assert.Equal(t, models.MaterialCategoryKey, items[1].Category, "missing category defaults to key material")
}

func TestExtractMaterials_OCRFallback(t *testing.T) {
	artifact := &models.ReportArtifact{
		ResultJSON: models.JSONB(`{"summary": "无明细"}`),
		OCRText:    "装修材料清单\n水泥 海螺牌 10袋\n电线 2.5平方 国标 3卷\n这一行没有任何关键材料\n水泥 重复的行应去重",
	}

	items := extractMaterials(artifact)
	require.Len(t, items, 2)
	assert.Equal(t, "水泥", items[0].MaterialName)
	assert.Equal(t, "水泥 海螺牌 10袋", items[0].SpecBrand)
	assert.Equal(t, "电线", items[1].MaterialName)
}

func TestExtractMaterials_RiskItemsFallback(t *testing.T) {
	artifact := &models.ReportArtifact{
		ResultJSON: models.JSONB(`{
			"high_risk_items": [{"item": "防水涂料未注明品牌"}],
			"warning_items": ["辅材型号缺失"]
		}`),
	}

	items := extractMaterials(artifact)
	require.Len(t, items, 2)
	// Key materials sort before auxiliary ones
	assert.Equal(t, "防水涂料未注明品牌", items[0].MaterialName)
	assert.Equal(t, models.MaterialCategoryKey, items[0].Category)
	assert.Equal(t, models.MaterialCategoryAuxiliary, items[1].Category)
}

func TestExtractMaterials_Empty(t *testing.T) {
	assert.Nil(t, extractMaterials(&models.ReportArtifact{}))
	assert.Nil(t, extractMaterials(&models.ReportArtifact{ResultJSON: models.JSONB("{corrupt")}))
}

func TestExtractMaterials_CapsListSize(t *testing.T) {
	entries := `"铝扣板"`
	for i := 1; i < 60; i++ {
		entries += `,"铝扣板"`
	}
	artifact := &models.ReportArtifact{
		ResultJSON: models.JSONB(`{"materials": [` + entries + `]}`),
	}

	items := extractMaterials(artifact)
	assert.Len(t, items, materialListCap)
}

func TestMaterialsFromOCRText_SkipsLongLines(t *testing.T) {
	long := "水泥"
	for len(long) <= 120 {
		long += "很长很长的一行"
	}
	items := materialsFromOCRText(long + "\n瓷砖 一箱")
	require.Len(t, items, 1)
	assert.Equal(t, "瓷砖", items[0].MaterialName)
}

func TestFirstString(t *testing.T) {
	m := map[string]interface{}{"b": "value", "c": 3, "d": ""}
	assert.Equal(t, "value", firstString(m, "a", "b"))
	assert.Equal(t, "", firstString(m, "c", "d", "missing"))
}
