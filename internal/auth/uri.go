package auth

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/pquerna/otp"
)

// ProvisioningURI builds the otpauth:// URI that pairing QR codes encode.
// Label segments are percent-encoded and the parameters go through
// url.Values, so issuer and account names never land raw in the URI.
func ProvisioningURI(issuer, account, secret string, period uint, digits otp.Digits) string {
	label := url.PathEscape(issuer) + ":" + url.PathEscape(account)

	params := url.Values{}
	params.Set("secret", secret)
	params.Set("issuer", issuer)
	params.Set("algorithm", "SHA1")
	params.Set("digits", strconv.Itoa(digits.Length()))
	params.Set("period", strconv.FormatUint(uint64(period), 10))

	return fmt.Sprintf("otpauth://totp/%s?%s", label, params.Encode())
}
