package cli

import (
	"bytes"
	"math"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

// Property: FormatReturn renders a fraction as a signed two-decimal
// percentage that parses back to the input.
func TestProperty_FormatReturn(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("FormatReturn round trips within rounding", prop.ForAll(
		func(v float64) bool {
			s := FormatReturn(v)
			if !strings.HasSuffix(s, "%") {
				return false
			}
			if v > 0 && !strings.HasPrefix(s, "+") {
				return false
			}
			parsed, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimPrefix(s, "+"), "%"), 64)
			if err != nil {
				return false
			}
			return math.Abs(parsed/100-v) <= 0.00005+1e-12
		},
		gen.Float64Range(-10, 10),
	))

	properties.Property("FormatDuration never exceeds two units", prop.ForAll(
		func(secs int64) bool {
			return len(strings.Fields(FormatDuration(time.Duration(secs)*time.Second))) <= 2
		},
		gen.Int64Range(0, 400*24*3600),
	))

	properties.TestingRun(t)
}

func TestFormatCases(t *testing.T) {
	assert.Equal(t, "+12.34%", FormatReturn(0.1234))
	assert.Equal(t, "-5.00%", FormatReturn(-0.05))
	assert.Equal(t, "-", FormatReturn(math.NaN()))
	assert.Equal(t, "1.50", FormatRatio(1.5))
	assert.Equal(t, "-", FormatRatio(math.Inf(1)))
	assert.Equal(t, "45s", FormatDuration(45*time.Second))
	assert.Equal(t, "2h 5m", FormatDuration(125*time.Minute))
	assert.Equal(t, "3d 1h", FormatDuration(73*time.Hour))

	now := time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "never", FormatAge(time.Time{}, now))
	assert.Equal(t, "1h 0m ago", FormatAge(now.Add(-time.Hour), now))
	assert.Equal(t, "-", FormatDateTime(time.Time{}, nil))
	assert.Equal(t, "2024-05-02 12:00:00", FormatDateTime(now, time.UTC))
}

func TestTableRenderAlignsIgnoringColor(t *testing.T) {
	var buf bytes.Buffer
	out := &Output{writer: &buf}
	tbl := NewTable(out, "symbol", "status")
	tbl.AddRow("^GSPC", "ok")
	tbl.AddRow("X", "\x1b[31merror\x1b[0m")
	tbl.Render()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 4)
	assert.Equal(t, "symbol  status", lines[0])
	assert.Equal(t, "------  ------", lines[1])
	assert.Equal(t, "^GSPC   ok", lines[2])
	assert.Equal(t, 5, visibleLen("\x1b[31merror\x1b[0m"))
}
