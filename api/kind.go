package api

import "fmt"

// Kind is the type of a remote object. It is also the first path segment of
// the object's URL.
type Kind string

const (
	KindAsset           Kind = "asset"
	KindAuthenticate    Kind = "authenticate"
	KindIdentification  Kind = "identification"
	KindSign            Kind = "sign"
	KindDecrypt         Kind = "decrypt"
	KindServiceProvider Kind = "serviceprovider"
	KindPing            Kind = "ping"
)

// ParseKind returns the Kind named s. Only kinds that can be fetched by uuid
// are accepted.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindAsset, KindAuthenticate, KindIdentification, KindSign, KindDecrypt, KindServiceProvider:
		return k, nil
	default:
		return "", fmt.Errorf("unsupported object type %q", s)
	}
}

// IsAssetRequest is true for kinds that require approval on the custodian
// device.
func (k Kind) IsAssetRequest() bool {
	switch k {
	case KindAuthenticate, KindSign, KindDecrypt:
		return true
	}
	return false
}

func (k Kind) String() string {
	return string(k)
}
