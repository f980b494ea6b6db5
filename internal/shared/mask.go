package shared

import "strings"

// MaskEmail hides the middle of an email's local part so addresses can be logged.
//
// The first character and the last two characters of the local part are kept:
//
//	thang0001@example.com -> t******01@example.com
//
// Local parts shorter than four characters are returned unchanged, as are strings
// without an '@'. Masking an already masked address yields the same string.
func MaskEmail(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return email
	}
	local := []rune(email[:at])
	if len(local) < 4 {
		return email
	}
	for i := 1; i < len(local)-2; i++ {
		local[i] = '*'
	}
	return string(local) + email[at:]
}
