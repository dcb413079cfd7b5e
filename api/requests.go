package api

type CreateAuthenticateRequest struct {
	AssetUUID   string `json:"asset_uuid"`
	Notify      bool   `json:"notify"`
	Fingerprint string `json:"fingerprint"`
}

type CreateSignRequest struct {
	AssetUUID   string `json:"asset_uuid"`
	ResourceURI string `json:"resource_uri"`
	Notify      bool   `json:"notify"`
	Fingerprint string `json:"fingerprint"`
}

type CreateDecryptRequest struct {
	AssetUUID string `json:"asset_uuid"`
	Notify    bool   `json:"notify"`
	// CipherData is the hex encoded RSA-OAEP ciphertext.
	CipherData string `json:"cipher_data"`
	// CipherKey is the hex encoded, RSA-OAEP wrapped transport key.
	CipherKey string `json:"cipher_key"`
}

const DefaultServiceProviderTemplate = "ubiqu_nourl"

type CreateServiceProviderRequest struct {
	Name        string `json:"name"`
	Template    string `json:"template"`
	URL         string `json:"url"`
	CallbackURL string `json:"callback_url"`
	// ChallengeURL is deprecated by the API but still expected. It is always
	// the same as URL.
	ChallengeURL string `json:"challenge_url"`
}

type EmptyRequest struct{}

type ValidateDomainResponse struct {
	Success bool `json:"success"`
}
