package auth

import (
	"fmt"
	"io"
	"strings"
)

// ShowTokenGuide prints how to obtain Helix credentials
func ShowTokenGuide(w io.Writer) {
	rule := strings.Repeat("=", 72)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "TWITCH API CREDENTIALS")
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "1. Register an application at https://dev.twitch.tv/console/apps")
	fmt.Fprintln(w, "   - OAuth Redirect URL: http://localhost")
	fmt.Fprintln(w, "   - Category: Analytics Tool")
	fmt.Fprintln(w, "2. Copy the Client ID from the application page")
	fmt.Fprintln(w, "3. Create a client secret, then request an app access token:")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "   curl -X POST https://id.twitch.tv/oauth2/token \\")
	fmt.Fprintln(w, "     -d client_id=<id> -d client_secret=<secret> -d grant_type=client_credentials")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "4. Paste the access_token value when prompted")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "App tokens expire after about 60 days. Run 'clipharvest auth login' again")
	fmt.Fprintln(w, "when requests start failing with 401.")
	fmt.Fprintln(w, rule)
}
