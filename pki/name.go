package pki

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"sort"
	"strings"
)

var oidEmailAddress = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 1}

// ParseDistinguishedName builds a subject from attribute names and values.
// Names are matched case insensitively and may be given in short form (cn),
// long form (commonName) or with the id-at- prefix (id-at-commonName).
func ParseDistinguishedName(fields map[string]string) (pkix.Name, error) {
	var name pkix.Name

	// sorted so that errors and ExtraNames are deterministic
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := fields[k]

		switch normalizeAttribute(k) {
		case "cn", "commonname":
			name.CommonName = v
		case "o", "organization", "organizationname":
			name.Organization = append(name.Organization, v)
		case "ou", "organizationalunit", "organizationalunitname":
			name.OrganizationalUnit = append(name.OrganizationalUnit, v)
		case "c", "country", "countryname":
			name.Country = append(name.Country, v)
		case "l", "locality", "localityname":
			name.Locality = append(name.Locality, v)
		case "st", "s", "state", "province", "stateorprovincename":
			name.Province = append(name.Province, v)
		case "street", "streetaddress":
			name.StreetAddress = append(name.StreetAddress, v)
		case "postalcode":
			name.PostalCode = append(name.PostalCode, v)
		case "serialnumber":
			name.SerialNumber = v
		case "emailaddress", "email", "e":
			name.ExtraNames = append(name.ExtraNames, pkix.AttributeTypeAndValue{
				Type:  oidEmailAddress,
				Value: v,
			})
		default:
			return pkix.Name{}, fmt.Errorf("unknown distinguished name attribute %q", k)
		}
	}

	return name, nil
}

func normalizeAttribute(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	k = strings.TrimPrefix(k, "id-at-")
	k = strings.TrimPrefix(k, "pkcs-9-at-")
	return strings.ReplaceAll(k, "_", "")
}
