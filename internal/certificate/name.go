package certificate

import (
	"crypto/x509/pkix"
	"fmt"
	"strings"
)

var attributeNames = map[string]string{
	"2.5.4.3":                    "CN",
	"2.5.4.10":                   "O",
	"2.5.4.11":                   "OU",
	"2.5.4.6":                    "C",
	"2.5.4.7":                    "L",
	"2.5.4.8":                    "ST",
	"1.2.840.113549.1.9.1":       "E",
	"2.5.4.4":                    "surname",
	"2.5.4.5":                    "serialNumber",
	"2.5.4.9":                    "streetAddress",
	"2.5.4.12":                   "title",
	"2.5.4.17":                   "postalCode",
	"2.5.4.42":                   "givenName",
	"2.5.4.45":                   "x500UniqueIdentifier",
	"0.9.2342.19200300.100.1.1":  "userID",
	"0.9.2342.19200300.100.1.25": "domainComponent",
}

// FormatName renders attributes in encoded order as "CN=x, O=y".
// Attributes without a known name are shown by dotted OID.
func FormatName(attrs []pkix.AttributeTypeAndValue) string {
	parts := make([]string, 0, len(attrs))
	for _, a := range attrs {
		oid := a.Type.String()
		name, ok := attributeNames[oid]
		if !ok {
			name = oid
		}
		parts = append(parts, fmt.Sprintf("%s=%v", name, a.Value))
	}
	return strings.Join(parts, ", ")
}
