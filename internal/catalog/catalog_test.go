package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/limitup-cli/internal/model"
)

func TestEligible(t *testing.T) {
	tests := []struct {
		name string
		meta model.ConceptMeta
		want bool
	}{
		{"concept board", model.ConceptMeta{Name: "固态电池", Exchange: "A", Type: "N", Available: true}, true},
		{"industry board", model.ConceptMeta{Name: "半导体", Exchange: "A", Type: "I", Available: true}, true},
		{"special broken-net board", model.ConceptMeta{Name: "破净股", Exchange: "A", Type: "S", Available: true}, true},
		{"other special board", model.ConceptMeta{Name: "ST板块", Exchange: "A", Type: "S", Available: true}, false},
		{"unavailable", model.ConceptMeta{Name: "固态电池", Exchange: "A", Type: "N", Available: false}, false},
		{"wrong exchange", model.ConceptMeta{Name: "固态电池", Exchange: "HK", Type: "N", Available: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Eligible(tt.meta))
		})
	}
}

func TestNewFiltersAndIndexes(t *testing.T) {
	metas := []model.ConceptMeta{
		{Code: "885001", Name: "固态电池", Exchange: "A", Type: "N", Available: true},
		{Code: "885002", Name: "融资融券", Exchange: "A", Type: "N", Available: true},
		{Code: "885003", Name: "港股通", Exchange: "HK", Type: "N", Available: true},
	}
	c := New(metas, nil)

	assert.Equal(t, 1, c.Len())
	assert.True(t, c.Has("固态电池"))
	assert.False(t, c.Has("融资融券"), "index membership boards are excluded")
	assert.False(t, c.Has("港股通"))
	assert.Equal(t, "885001", c.CodeFor("固态电池"))
	assert.Equal(t, "", c.CodeFor("未知"))
	assert.Equal(t, []string{"固态电池"}, c.Names())
}

func TestCustomDict(t *testing.T) {
	metas := []model.ConceptMeta{
		{Code: "885001", Name: "固态电池", Exchange: "A", Type: "N", Available: true},
	}
	dict := map[string][]string{
		"华为汽车": {"问界", "智选车"},
		"低空经济": {"飞行汽车", "eVTOL"},
	}
	c := New(metas, dict)

	assert.True(t, c.HasCustomTheme("华为汽车"))
	assert.False(t, c.HasCustomTheme("固态电池"))

	// A token matching a keyword by substring pulls in its theme.
	assert.Equal(t, []string{"华为汽车"}, c.ThemesMatchingTokens([]string{"问界"}))
	assert.Equal(t, []string{"低空经济"}, c.ThemesMatchingTokens([]string{"飞行"}))
	assert.Empty(t, c.ThemesMatchingTokens([]string{"白酒"}))
	assert.Empty(t, c.ThemesMatchingTokens([]string{""}))
}

func TestIsExcluded(t *testing.T) {
	assert.True(t, IsExcluded("沪股通"))
	assert.False(t, IsExcluded("固态电池"))
}
