package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Global Universe Collector Configuration

[data]
# Data root; defaults to ~/.config/global-universe/data
# dir = "/srv/global-universe"
# Replace the built-in asset catalog, or merge extra entries into it
catalog_file = ""
catalog_extra = ""
# Replace the built-in macro series registry
macros_file = ""
# Timezone that defines "today" ("Local" uses the machine timezone)
timezone = "Local"
# Record every run in the SQLite ledger
ledger = true

[http]
# Requests per second shared by all providers
rate_limit = 2.0
burst = 2
timeout = "30s"
# Attempts per request, including the first
retries = 3
retry_delay = "500ms"
max_retry_delay = "10s"
# Consecutive 429/5xx/network failures before a host is skipped for the
# cooldown; 0 disables
breaker_threshold = 0
breaker_cooldown = "30s"

[prices]
# Pause between symbols
pause = "300ms"
# 0 means the whole catalog
max_symbols = 0
# Restrict the walk to these symbols
symbols = []
workers = 1

[valuations]
enabled = true
pause = "200ms"
max_symbols = 0
symbols = []
# batch_quote or info
mode = "batch_quote"
# Symbols per batch quote request
chunk = 20
# Call the per-symbol info endpoint when batch quotes have no fields
info_fallback = true
# 0 means unlimited
max_info_calls = 0
# Tolerances used to decide whether metrics changed
rel_tolerance = 1e-9
abs_tolerance = 1e-12

[krx]
enabled = true
# full fetches since 1990, quick fetches the last price_years years
price_mode = "full"
price_years = 3
# append_today or backfill
valuation_mode = "backfill"
pause = "0s"

[macro]
enabled = true
# Empty means every group in the registry
groups = []
# First date requested for a new group
start = "2000-01-01"
# Months re-fetched on every run to pick up revisions
revision_months = 3

[schedule]
# Cron spec with seconds
cron = "0 30 7 * * 2-6"
timezone = "Asia/Seoul"
# Any of prices, valuations, krx, macro
tasks = ["prices", "valuations", "krx"]
run_on_start = false

[logging]
# debug, info, warn, error
level = "info"
# Write rotated logs under the config directory
file = true
json = false

[notifications]
enabled = false
# all or errors_only
level = "all"

[notifications.webhook]
enabled = false
url = ""

[notifications.telegram]
enabled = false
bot_token = ""
chat_id = ""
`

const credentialsTemplate = `# Global Universe Collector Credentials
# WARNING: Keep this file secure! Do not commit to version control.

[bls]
# Registration keys, tried in order when the daily quota runs out
api_keys = []

[fred]
api_key = ""
`

// createTemplate writes a commented template so the next run picks it up.
// The current run continues with defaults.
func createTemplate(configDir, name, content string, perm os.FileMode) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name)
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		return fmt.Errorf("writing %s template: %w", name, err)
	}
	return nil
}
