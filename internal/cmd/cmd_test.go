package cmd

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"os"
	"regexp"
	"strings"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
	"gotest.tools/v3/fs"

	"github.com/infrahq/custody/custody/custodytest"
	"github.com/infrahq/custody/internal"
	"github.com/infrahq/custody/internal/logging"
	"github.com/infrahq/custody/internal/server"
)

const testAPIKey = "cli-api-key"

// setupCustodian starts a custodian and points the CUSTODY_ environment
// variables at it. The api key is read through an env: reference.
func setupCustodian(t *testing.T) *custodytest.Custodian {
	t.Helper()
	logging.PatchLogger(t, nil)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("USERPROFILE", os.Getenv("HOME")) // Windows

	custodian := custodytest.New(t, testAPIKey)
	t.Setenv("CUSTODY_API_URL", custodian.URL())
	t.Setenv("TEST_SP_KEY", testAPIKey)
	t.Setenv("CUSTODY_API_KEY", "env:TEST_SP_KEY")
	return custodian
}

// acceptWhenCreated accepts the n-th request received by custodian, once it
// arrives.
func acceptWhenCreated(t *testing.T, custodian *custodytest.Custodian, n int) {
	t.Helper()
	done := make(chan struct{})
	t.Cleanup(func() { <-done })

	go func() {
		defer close(done)
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			if ids := custodian.Requests(); len(ids) > n {
				custodian.Accept(ids[n])
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()
}

var createdRequest = regexp.MustCompile(`Created \w+ request ([0-9a-f-]{36})`)

func TestVersionCmd(t *testing.T) {
	setupCustodian(t)
	ctx, bufs := PatchCLI(context.Background())

	err := Run(ctx, "version")
	assert.NilError(t, err)
	assert.Equal(t, bufs.Stdout.String(), "custody "+internal.FullVersion()+"\n")
}

func TestPingCmd(t *testing.T) {
	custodian := setupCustodian(t)
	ctx, bufs := PatchCLI(context.Background())

	err := Run(ctx, "ping")
	assert.NilError(t, err)
	assert.Equal(t, bufs.Stdout.String(), custodian.URL()+" is reachable\n")
}

func TestAPIKeyOptions(t *testing.T) {
	custodian := setupCustodian(t)
	id, _ := custodian.AddAsset("laptop")

	t.Run("missing key", func(t *testing.T) {
		t.Setenv("CUSTODY_API_KEY", "")
		ctx, _ := PatchCLI(context.Background())

		err := Run(ctx, "asset", id)
		var cliErr Error
		assert.Assert(t, errors.As(err, &cliErr))
		assert.ErrorContains(t, err, "missing api key")
		assert.Equal(t, custodian.Calls(), 0)
	})

	t.Run("unresolved reference", func(t *testing.T) {
		t.Setenv("CUSTODY_API_KEY", "env:DOES_NOT_EXIST")
		ctx, _ := PatchCLI(context.Background())

		err := Run(ctx, "asset", id)
		assert.ErrorContains(t, err, "could not read the api key")
	})

	t.Run("flag overrides env", func(t *testing.T) {
		ctx, _ := PatchCLI(context.Background())

		err := Run(ctx, "--api-key", "wrong-key", "asset", id)
		assert.ErrorContains(t, err, "the custodian rejected the api key")
	})

	t.Run("config file", func(t *testing.T) {
		for _, name := range []string{"CUSTODY_API_URL", "CUSTODY_API_KEY"} {
			t.Setenv(name, "")
			os.Unsetenv(name)
		}

		keyFile := fs.NewFile(t, "key", fs.WithContent(testAPIKey+"\n"))
		config := fs.NewFile(t, "config", fs.WithContent(`
api:
  url: `+custodian.URL()+`
  key: file:`+keyFile.Path()+`
  timeout: 10s
`))

		ctx, bufs := PatchCLI(context.Background())
		err := Run(ctx, "--config-file", config.Path(), "asset", id)
		assert.NilError(t, err)
		assert.Assert(t, is.Contains(bufs.Stdout.String(), "laptop"))
	})

	t.Run("missing config file", func(t *testing.T) {
		ctx, _ := PatchCLI(context.Background())
		err := Run(ctx, "--config-file", "/does/not/exist.yaml", "version")
		assert.ErrorContains(t, err, "failed to open file")
	})
}

func TestAssetCmd(t *testing.T) {
	custodian := setupCustodian(t)
	id, _ := custodian.AddAsset("laptop")

	ctx, bufs := PatchCLI(context.Background())
	err := Run(ctx, "asset", id)
	assert.NilError(t, err)

	out := bufs.Stdout.String()
	assert.Assert(t, is.Contains(out, id))
	assert.Assert(t, is.Contains(out, "laptop"))
	assert.Assert(t, is.Contains(out, "active"))
	assert.Assert(t, is.Contains(out, "2048"))
	assert.Assert(t, !strings.Contains(out, "2.4K"), out)

	t.Run("public key", func(t *testing.T) {
		ctx, bufs := PatchCLI(context.Background())
		err := Run(ctx, "asset", id, "--public-key")
		assert.NilError(t, err)
		assert.Assert(t, strings.HasPrefix(bufs.Stdout.String(), "-----BEGIN "))
	})

	t.Run("unknown asset", func(t *testing.T) {
		ctx, _ := PatchCLI(context.Background())
		err := Run(ctx, "asset", "1b4e28ba-2fa1-11d2-883f-0016d3cca427")
		assert.ErrorContains(t, err, "Error: not found")
	})

	t.Run("wrong number of arguments", func(t *testing.T) {
		ctx, _ := PatchCLI(context.Background())
		err := Run(ctx, "asset")
		assert.ErrorContains(t, err, `"custody asset" requires exactly 1 argument.`)
	})
}

func TestSignCmd(t *testing.T) {
	custodian := setupCustodian(t)
	id, key := custodian.AddAsset("laptop")

	ctx, bufs := PatchCLI(context.Background())
	bufs.Stdin.WriteString("hello")

	err := Run(ctx, "sign", id, "--wait=0")
	assert.NilError(t, err)
	assert.Equal(t, bufs.Stdout.String(), "")
	assert.Assert(t, is.Contains(bufs.Stderr.String(), "123 456 789"))

	match := createdRequest.FindStringSubmatch(bufs.Stderr.String())
	assert.Assert(t, is.Len(match, 2), bufs.Stderr.String())
	requestID := match[1]
	assert.DeepEqual(t, custodian.Requests(), []string{requestID})

	t.Run("pending", func(t *testing.T) {
		ctx, bufs := PatchCLI(context.Background())
		err := Run(ctx, "request", "sign", requestID)
		assert.NilError(t, err)
		assert.Assert(t, is.Contains(bufs.Stdout.String(), "created"))
	})

	t.Run("not answered in time", func(t *testing.T) {
		ctx, bufs := PatchCLI(context.Background())
		bufs.Stdin.WriteString("hello")
		err := Run(ctx, "sign", id, "--resume", requestID, "--wait=50ms", "--poll-interval=10ms")
		assert.ErrorContains(t, err, "was not answered within 50 milliseconds")
	})

	custodian.Accept(requestID)

	t.Run("resume", func(t *testing.T) {
		ctx, bufs := PatchCLI(context.Background())
		bufs.Stdin.WriteString("hello")

		err := Run(ctx, "sign", id, "--resume", requestID)
		assert.NilError(t, err)

		signature, err := base64.StdEncoding.DecodeString(strings.TrimSpace(bufs.Stdout.String()))
		assert.NilError(t, err)
		digest := sha256.Sum256([]byte("hello"))
		assert.NilError(t, rsa.VerifyPKCS1v15(&key.PublicKey, crypto.SHA256, digest[:], signature))
	})

	t.Run("resume with other data", func(t *testing.T) {
		input := fs.NewFile(t, "input", fs.WithContent("goodbye"))
		ctx, _ := PatchCLI(context.Background())

		err := Run(ctx, "sign", id, "--resume", requestID, "--in", input.Path())
		assert.ErrorContains(t, err, "the signature returned by the device is not valid")
	})

	t.Run("rejected", func(t *testing.T) {
		ctx, bufs := PatchCLI(context.Background())
		bufs.Stdin.WriteString("rejected")
		assert.NilError(t, Run(ctx, "sign", id, "--wait=0"))

		rejected := createdRequest.FindStringSubmatch(bufs.Stderr.String())[1]
		custodian.SetStatus(rejected, custodytest.StatusRejected, "rejected by user")

		ctx, bufs = PatchCLI(context.Background())
		bufs.Stdin.WriteString("rejected")
		err := Run(ctx, "sign", id, "--resume", rejected)
		assert.ErrorContains(t, err, "sign request "+rejected+" was rejected")
		assert.ErrorContains(t, err, `"rejected by user"`)
	})

	t.Run("request of an asset", func(t *testing.T) {
		ctx, _ := PatchCLI(context.Background())
		err := Run(ctx, "request", "asset", id)
		assert.ErrorContains(t, err, "asset is not a request")
	})
}

func TestAuthenticateCmd(t *testing.T) {
	custodian := setupCustodian(t)
	id, _ := custodian.AddAsset("laptop")
	acceptWhenCreated(t, custodian, 0)

	ctx, bufs := PatchCLI(context.Background())
	err := Run(ctx, "authenticate", id, "--poll-interval=10ms")
	assert.NilError(t, err)
	assert.Equal(t, bufs.Stdout.String(), "Authenticated with asset "+id+"\n")
}

func TestEncryptDecryptCmd(t *testing.T) {
	custodian := setupCustodian(t)
	id, _ := custodian.AddAsset("laptop")

	ctx, bufs := PatchCLI(context.Background())
	bufs.Stdin.WriteString("the secret")
	err := Run(ctx, "encrypt", id)
	assert.NilError(t, err)
	ciphertext := bufs.Stdout.String()
	assert.Equal(t, len(custodian.Requests()), 0)

	for i, bits := range []string{"128", "256"} {
		acceptWhenCreated(t, custodian, i)

		ctx, bufs = PatchCLI(context.Background())
		bufs.Stdin.WriteString(ciphertext)
		err = Run(ctx, "decrypt", id, "--key-length", bits, "--poll-interval=10ms")
		assert.NilError(t, err, bits)
		assert.Equal(t, bufs.Stdout.String(), "the secret", bits)
	}

	t.Run("unsupported key length", func(t *testing.T) {
		calls := custodian.Calls()
		ctx, bufs := PatchCLI(context.Background())
		bufs.Stdin.WriteString(ciphertext)

		err := Run(ctx, "decrypt", id, "--key-length", "192")
		assert.ErrorContains(t, err, "unsupported key length")
		assert.Equal(t, custodian.Calls(), calls)
	})

	t.Run("no wait", func(t *testing.T) {
		ctx, bufs := PatchCLI(context.Background())
		bufs.Stdin.WriteString(ciphertext)

		err := Run(ctx, "decrypt", id, "--wait=0")
		assert.ErrorContains(t, err, "--wait must be greater than 0")
	})

	t.Run("not base64", func(t *testing.T) {
		ctx, bufs := PatchCLI(context.Background())
		bufs.Stdin.WriteString("not base64!")

		err := Run(ctx, "decrypt", id)
		assert.ErrorContains(t, err, "input is not base64")
	})
}

func TestCSRCmd(t *testing.T) {
	custodian := setupCustodian(t)
	id, key := custodian.AddAsset("laptop")
	dir := fs.NewDir(t, t.Name())

	acceptWhenCreated(t, custodian, 0)
	ctx, _ := PatchCLI(context.Background())
	err := Run(ctx, "csr", id,
		"--subject", "CN=alice,O=Example",
		"--format", "der",
		"--out", dir.Join("alice.csr"),
		"--poll-interval=10ms")
	assert.NilError(t, err)

	der, err := os.ReadFile(dir.Join("alice.csr"))
	assert.NilError(t, err)

	request, err := x509.ParseCertificateRequest(der)
	assert.NilError(t, err)
	assert.NilError(t, request.CheckSignature())
	assert.Equal(t, request.Subject.CommonName, "alice")
	assert.DeepEqual(t, request.Subject.Organization, []string{"Example"})
	assert.Assert(t, key.PublicKey.Equal(request.PublicKey))

	t.Run("pem", func(t *testing.T) {
		acceptWhenCreated(t, custodian, 1)
		ctx, bufs := PatchCLI(context.Background())

		err := Run(ctx, "csr", id, "--subject", "cn=bob", "--poll-interval=10ms")
		assert.NilError(t, err)
		assert.Assert(t, strings.HasPrefix(bufs.Stdout.String(), "-----BEGIN CERTIFICATE REQUEST-----"))
	})

	t.Run("invalid subject", func(t *testing.T) {
		ctx, _ := PatchCLI(context.Background())
		err := Run(ctx, "csr", id, "--subject", "nickname=bob")
		assert.ErrorContains(t, err, "invalid subject")
	})
}

func TestServiceProviderCmd(t *testing.T) {
	custodian := setupCustodian(t)

	ctx, bufs := PatchCLI(context.Background())
	err := Run(ctx, "serviceprovider", "create", "--name", "Example", "--url", "https://example.com")
	assert.NilError(t, err)

	out := bufs.Stdout.String()
	match := regexp.MustCompile(`Created service provider Example \(([0-9a-f-]{36})\)`).FindStringSubmatch(out)
	assert.Assert(t, is.Len(match, 2), out)
	spID := match[1]

	assert.Assert(t, is.Contains(out, "key-"+spID))
	assert.Assert(t, is.Contains(out, "https://example.com/.well-known/uqfree"))
	assert.Assert(t, is.Contains(out, "111 222 333"))

	t.Run("old key is rejected", func(t *testing.T) {
		ctx, _ := PatchCLI(context.Background())
		err := Run(ctx, "serviceprovider", "validate-domain", spID)
		assert.ErrorContains(t, err, "the custodian rejected the api key")
	})

	t.Setenv("TEST_SP_KEY", "key-"+spID)

	t.Run("validate domain", func(t *testing.T) {
		ctx, bufs := PatchCLI(context.Background())
		err := Run(ctx, "serviceprovider", "validate-domain", spID)
		assert.NilError(t, err)
		assert.Equal(t, bufs.Stdout.String(), "Domain of Example is validated\n")
	})

	t.Run("get", func(t *testing.T) {
		ctx, bufs := PatchCLI(context.Background())
		err := Run(ctx, "sp", "get", spID)
		assert.NilError(t, err)
		assert.Assert(t, is.Contains(bufs.Stdout.String(), "Example"))
	})

	t.Run("name is required", func(t *testing.T) {
		ctx, _ := PatchCLI(context.Background())
		err := Run(ctx, "serviceprovider", "create")
		assert.ErrorContains(t, err, `"name" not set`)
	})

	assert.Equal(t, len(custodian.Requests()), 0)
}

func TestIdentificationCmd(t *testing.T) {
	setupCustodian(t)
	dir := fs.NewDir(t, t.Name())

	ctx, bufs := PatchCLI(context.Background())
	err := Run(ctx, "identification", "create", "--qr-out", dir.Join("qr.png"))
	assert.NilError(t, err)

	out := bufs.Stdout.String()
	match := regexp.MustCompile(`Created identification ([0-9a-f-]{36})`).FindStringSubmatch(out)
	assert.Assert(t, is.Len(match, 2), out)
	assert.Assert(t, is.Contains(out, "uqfree://identification/"+match[1]))
	assert.Assert(t, is.Contains(out, "987 654 321"))

	png, err := os.ReadFile(dir.Join("qr.png"))
	assert.NilError(t, err)
	assert.Equal(t, string(png), "\x89PNG\r\n\x1a\n")

	ctx, bufs = PatchCLI(context.Background())
	err = Run(ctx, "identification", "get", match[1])
	assert.NilError(t, err)
	assert.Assert(t, is.Contains(bufs.Stdout.String(), "created"))
}

func TestServerCmd(t *testing.T) {
	setupCustodian(t)

	var srv *server.Server
	orig := runServer
	runServer = func(ctx context.Context, s *server.Server) error {
		srv = s
		ctx, cancel := context.WithCancel(ctx)
		cancel()
		return s.Run(ctx)
	}
	t.Cleanup(func() { runServer = orig })

	t.Setenv("CUSTODY_SERVER_METRICS_ADDR", "127.0.0.1:0")

	ctx, _ := PatchCLI(context.Background())
	err := Run(ctx, "server", "--server-addr", "127.0.0.1:0")
	assert.NilError(t, err)
	assert.Assert(t, srv != nil)
	assert.Assert(t, strings.HasPrefix(srv.Addrs.HTTP.String(), "127.0.0.1:"))
	assert.Assert(t, strings.HasPrefix(srv.Addrs.Metrics.String(), "127.0.0.1:"))
}
