package catalog

import (
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"global-universe/internal/models"
)

// Property: fallbacks never repeat a symbol or contain the primary, and an
// index primary is always followed by the ETF when one exists.
func TestProperty_FallbackOrder(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	sym := gen.IntRange(0, 6).Map(func(i int) string {
		if i == 0 {
			return ""
		}
		return fmt.Sprintf("S%d", i)
	})

	properties.Property("Fallbacks are unique and exclude the primary", prop.ForAll(
		func(index, etf string, alts []string) bool {
			a := Resolve(models.AssetSpec{Index: index, ETF: etf, Alternatives: alts})
			if index == "" && etf == "" {
				return !a.HasPrimary() && len(a.Fallbacks) == 0
			}
			seen := map[string]bool{a.Primary.Symbol: true}
			for _, f := range a.Fallbacks {
				if f.Symbol == "" || seen[f.Symbol] {
					return false
				}
				seen[f.Symbol] = true
			}
			return true
		},
		sym, sym, gen.SliceOfN(4, sym),
	))

	properties.Property("Index primary falls back to its ETF first", prop.ForAll(
		func(index, etf string, alts []string) bool {
			a := Resolve(models.AssetSpec{Index: index, ETF: etf, Alternatives: alts})
			if index == "" {
				return a.Primary.Symbol == etf
			}
			if a.Primary.Role != models.RoleIndex {
				return false
			}
			if etf == "" || etf == index {
				return true
			}
			return len(a.Fallbacks) > 0 && a.Fallbacks[0].Symbol == etf && a.Fallbacks[0].Role == models.RoleETF
		},
		sym, sym, gen.SliceOfN(4, sym),
	))

	properties.TestingRun(t)
}
