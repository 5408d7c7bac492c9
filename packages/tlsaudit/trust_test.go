package tlsaudit

import (
	"crypto/tls"
	"crypto/x509"
	"testing"

	"github.com/abdul-hamid-achik/hitshot/packages/audit"
	"github.com/abdul-hamid-achik/hitshot/packages/internal/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTrustMode(t *testing.T) {
	tests := []struct {
		in      string
		want    TrustMode
		wantErr bool
	}{
		{"", TrustStrict, false},
		{"strict", TrustStrict, false},
		{"STRICT", TrustStrict, false},
		{"audit-only", TrustAuditOnly, false},
		{" Audit-Only ", TrustAuditOnly, false},
		{"lenient", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTrustMode(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownTrustMode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewTrustManager_SelectsVariant(t *testing.T) {
	a := audit.New()

	tm, err := NewTrustManager(TrustStrict, a, nil)
	require.NoError(t, err)
	assert.IsType(t, &StrictDelegating{}, tm)

	tm, err = NewTrustManager(TrustAuditOnly, a, nil)
	require.NoError(t, err)
	assert.IsType(t, &AuditOnlyAccepting{}, tm)

	_, err = NewTrustManager("other", a, nil)
	assert.ErrorIs(t, err, ErrUnknownTrustMode)
}

func TestStrictDelegating_RejectsEmptyChain(t *testing.T) {
	a := audit.New()
	err := NewStrictDelegating(a, nil).CheckServerTrusted("example.com", tls.ConnectionState{})

	assert.Error(t, err)
	assert.True(t, containsLine(a.Lines(), "server certificate rejected"))
}

func TestAuditOnlyAccepting_AcceptsAnything(t *testing.T) {
	cert := testhelpers.GenerateCertificate(t, "self-signed")
	a := audit.New()

	err := NewAuditOnlyAccepting(a).CheckServerTrusted("example.com", tls.ConnectionState{
		PeerCertificates: []*x509.Certificate{cert.Cert},
	})

	assert.NoError(t, err)
	lines := a.Lines()
	assert.True(t, containsLine(lines, `checkServerTrusted: server="example.com" chain=1`))
	assert.True(t, containsLine(lines, "CN=self-signed"))
}
