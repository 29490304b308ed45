package channel

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/quic-go/quic-go"
)

const quicALPN = "datalink-quic"

// QUICChannel implements ByteChannel over a single bidirectional QUIC
// stream
type QUICChannel struct {
	*StreamChannel

	connection *quic.Conn
	stream     *quic.Stream
	listener   *quic.Listener
}

// QUICChannelConfig configures a QUIC channel
type QUICChannelConfig struct {
	Address     string        // "host:port" format
	IsServer    bool          // true = listen and accept one peer, false = connect
	IdleTimeout time.Duration // QUIC max idle timeout (0 = 30s)
	TLSConfig   *tls.Config   // Optional TLS config (if nil, will generate self-signed cert)
}

// NewQUICChannel creates a new QUIC channel. In server mode it blocks until
// one peer has connected and opened its stream, or ctx is done.
func NewQUICChannel(ctx context.Context, config QUICChannelConfig) (*QUICChannel, error) {
	if config.Address == "" {
		return nil, fmt.Errorf("address is required")
	}

	// Set defaults
	if config.IdleTimeout == 0 {
		config.IdleTimeout = 30 * time.Second
	}

	// Generate TLS config if not provided
	tlsConfig := config.TLSConfig
	if tlsConfig == nil {
		var err error
		tlsConfig, err = generateTLSConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to generate TLS config: %w", err)
		}
	}

	quicConfig := &quic.Config{
		MaxIdleTimeout:  config.IdleTimeout,
		KeepAlivePeriod: config.IdleTimeout / 3,
	}

	if config.IsServer {
		return acceptQUIC(ctx, config.Address, tlsConfig, quicConfig)
	}
	return dialQUIC(ctx, config.Address, tlsConfig, quicConfig)
}

// generateTLSConfig generates a self-signed certificate for QUIC
func generateTLSConfig() (*tls.Config, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})

	tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates:       []tls.Certificate{tlsCert},
		NextProtos:         []string{quicALPN},
		InsecureSkipVerify: true, // For self-signed certs
	}, nil
}

// acceptQUIC listens on address and waits for one connection and stream
func acceptQUIC(ctx context.Context, address string, tlsConfig *tls.Config, quicConfig *quic.Config) (*QUICChannel, error) {
	listener, err := quic.ListenAddr(address, tlsConfig, quicConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	conn, err := listener.Accept(ctx)
	if err != nil {
		listener.Close()
		return nil, fmt.Errorf("accept on %s: %w", address, err)
	}

	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		conn.CloseWithError(0, "no stream")
		listener.Close()
		return nil, fmt.Errorf("accept stream: %w", err)
	}

	return newQUICChannel(conn, stream, listener), nil
}

// dialQUIC connects to address and opens the link stream
func dialQUIC(ctx context.Context, address string, tlsConfig *tls.Config, quicConfig *quic.Config) (*QUICChannel, error) {
	conn, err := quic.DialAddr(ctx, address, tlsConfig, quicConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", address, err)
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(0, "failed to open stream")
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}

	// The peer only sees the stream once data flows on it. A lone flag is
	// discarded by the frame receiver.
	if _, err := stream.Write([]byte{0x7E}); err != nil {
		conn.CloseWithError(0, "failed to announce stream")
		return nil, fmt.Errorf("failed to announce stream: %w", err)
	}

	return newQUICChannel(conn, stream, nil), nil
}

func newQUICChannel(conn *quic.Conn, stream *quic.Stream, listener *quic.Listener) *QUICChannel {
	qc := &QUICChannel{
		connection: conn,
		stream:     stream,
		listener:   listener,
	}
	qc.StreamChannel = NewStreamChannel("quic:"+conn.RemoteAddr().String(), &quicStream{qc})
	if listener != nil {
		qc.addCleanup(listener.Close)
	}
	return qc
}

// quicStream closes both stream directions and the connection so that the
// reader goroutine is released
type quicStream struct {
	qc *QUICChannel
}

func (s *quicStream) Read(p []byte) (int, error) {
	return s.qc.stream.Read(p)
}

func (s *quicStream) Write(p []byte) (int, error) {
	return s.qc.stream.Write(p)
}

func (s *quicStream) SetWriteDeadline(t time.Time) error {
	return s.qc.stream.SetWriteDeadline(t)
}

func (s *quicStream) Close() error {
	s.qc.stream.CancelRead(0)
	err := s.qc.stream.Close()
	return errors.Join(err, s.qc.connection.CloseWithError(0, "channel closed"))
}

// IsConnected returns true if the QUIC connection is still alive
func (qc *QUICChannel) IsConnected() bool {
	return qc.connection.Context().Err() == nil
}
