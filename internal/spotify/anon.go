package spotify

import (
	"context"
	"encoding/base32"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Anonymous web-player access tokens cover search without any credentials.
// The token endpoint requires a TOTP derived from an obfuscated secret
// shipped with the web player; the secret rotates with the player version.

const anonTokenURL = "https://open.spotify.com/api/token"

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Current web-player TOTP secret (version 61).
var totpSecret = struct {
	version int
	bytes   []byte
}{
	version: 61,
	bytes:   []byte{44, 55, 47, 42, 70, 40, 34, 114, 76, 74, 50, 111, 120, 97, 75, 76, 94, 102, 43, 69, 49, 120, 118, 80, 64, 78},
}

func generateTOTP(now time.Time) (string, int, error) {
	transformed := make([]byte, len(totpSecret.bytes))
	for i, b := range totpSecret.bytes {
		transformed[i] = b ^ byte((i%33)+9)
	}

	var joined strings.Builder
	for _, b := range transformed {
		joined.WriteString(strconv.Itoa(int(b)))
	}

	hexBytes, err := hex.DecodeString(hex.EncodeToString([]byte(joined.String())))
	if err != nil {
		return "", 0, err
	}

	secret := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(hexBytes)

	key, err := otp.NewKeyFromURL(fmt.Sprintf("otpauth://totp/secret?secret=%s", secret))
	if err != nil {
		return "", 0, err
	}

	code, err := totp.GenerateCode(key.Secret(), now)
	if err != nil {
		return "", 0, err
	}

	return code, totpSecret.version, nil
}

// GetAnonymousToken fetches a search-capable web-player token. Used as the
// fallback when no client credentials are configured.
func GetAnonymousToken(ctx context.Context) (string, error) {
	code, version, err := generateTOTP(time.Now())
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, anonTokenURL, nil)
	if err != nil {
		return "", err
	}

	q := req.URL.Query()
	q.Add("reason", "init")
	q.Add("productType", "web-player")
	q.Add("totp", code)
	q.Add("totpVer", strconv.Itoa(version))
	q.Add("totpServer", code)
	req.URL.RawQuery = q.Encode()

	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Content-Type", "application/json;charset=UTF-8")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("anonymous token request failed: HTTP %d", resp.StatusCode)
	}

	var data struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", err
	}
	if data.AccessToken == "" {
		return "", fmt.Errorf("anonymous token response missing accessToken")
	}

	return data.AccessToken, nil
}
