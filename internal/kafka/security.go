package kafka

import (
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/tls"
	"fmt"
	"hash"
	"strconv"

	"github.com/IBM/sarama"
	"github.com/aws/aws-msk-iam-sasl-signer-go/signer"
	"github.com/xdg-go/scram"
)

// Supported SASL mechanisms.
const (
	MechanismPlain       = "PLAIN"
	MechanismSCRAMSHA256 = "SCRAM-SHA-256"
	MechanismSCRAMSHA512 = "SCRAM-SHA-512"
	MechanismAWSMSKIAM   = "AWS_MSK_IAM"
)

// SecurityConfig holds broker authentication and transport settings shared by
// the consumer and the producers.
type SecurityConfig struct {
	Protocol      string
	SASLMechanism string
	SASLUsername  string
	SASLPassword  string
	// AWSRegion signs MSK IAM tokens.
	AWSRegion string
}

// Ensure XDGSCRAMClient implements sarama.SCRAMClient.
var _ sarama.SCRAMClient = (*XDGSCRAMClient)(nil)

// XDGSCRAMClient implements sarama.SCRAMClient for SCRAM authentication.
type XDGSCRAMClient struct {
	*scram.Client
	*scram.ClientConversation
	scram.HashGeneratorFcn
}

// Begin starts the SCRAM authentication process.
func (x *XDGSCRAMClient) Begin(userName, password, authzID string) (err error) {
	x.Client, err = x.HashGeneratorFcn.NewClient(userName, password, authzID)
	if err != nil {
		return err
	}
	x.ClientConversation = x.Client.NewConversation()
	return nil
}

// Step performs a step in the SCRAM authentication.
func (x *XDGSCRAMClient) Step(challenge string) (response string, err error) {
	return x.ClientConversation.Step(challenge)
}

// Done indicates if authentication is complete.
func (x *XDGSCRAMClient) Done() bool {
	return x.ClientConversation.Done()
}

// SHA256 returns a SHA256 hash generator.
func SHA256() scram.HashGeneratorFcn {
	return func() hash.Hash { return sha256.New() }
}

// SHA512 returns a SHA512 hash generator.
func SHA512() scram.HashGeneratorFcn {
	return func() hash.Hash { return sha512.New() }
}

// MSKAccessTokenProvider implements sarama.AccessTokenProvider for AWS MSK IAM authentication.
type MSKAccessTokenProvider struct {
	region string
}

// Token generates an AWS MSK IAM authentication token.
func (m *MSKAccessTokenProvider) Token() (*sarama.AccessToken, error) {
	token, expiryMs, err := signer.GenerateAuthToken(context.Background(), m.region)
	if err != nil {
		return nil, fmt.Errorf("failed to generate MSK IAM token: %w", err)
	}

	return &sarama.AccessToken{
		Token: token,
		Extensions: map[string]string{
			"expiry": strconv.FormatInt(expiryMs, 10),
		},
	}, nil
}

func configureSecurity(config *sarama.Config, sec SecurityConfig) error {
	switch sec.Protocol {
	case "", "PLAINTEXT":
		return nil

	case "SSL":
		config.Net.TLS.Enable = true
		config.Net.TLS.Config = &tls.Config{MinVersion: tls.VersionTLS12}
		return nil

	case "SASL_PLAINTEXT", "SASL_SSL":
		if err := configureSASL(config, sec); err != nil {
			return err
		}
		if sec.Protocol == "SASL_SSL" {
			config.Net.TLS.Enable = true
			config.Net.TLS.Config = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		return nil

	default:
		return fmt.Errorf("unsupported security protocol: %s", sec.Protocol)
	}
}

func configureSASL(config *sarama.Config, sec SecurityConfig) error {
	config.Net.SASL.Enable = true

	switch sec.SASLMechanism {
	case MechanismPlain:
		config.Net.SASL.Mechanism = sarama.SASLTypePlaintext

	case MechanismSCRAMSHA256:
		config.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
		config.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
			return &XDGSCRAMClient{HashGeneratorFcn: SHA256()}
		}

	case MechanismSCRAMSHA512:
		config.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
		config.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
			return &XDGSCRAMClient{HashGeneratorFcn: SHA512()}
		}

	case MechanismAWSMSKIAM:
		if sec.AWSRegion == "" {
			return fmt.Errorf("aws region is required for %s", MechanismAWSMSKIAM)
		}
		config.Net.SASL.Mechanism = sarama.SASLTypeOAuth
		config.Net.SASL.TokenProvider = &MSKAccessTokenProvider{region: sec.AWSRegion}
		return nil

	default:
		return fmt.Errorf("unsupported SASL mechanism: %s", sec.SASLMechanism)
	}

	if sec.SASLUsername == "" || sec.SASLPassword == "" {
		return fmt.Errorf("sasl username and password are required for %s", sec.SASLMechanism)
	}
	config.Net.SASL.User = sec.SASLUsername
	config.Net.SASL.Password = sec.SASLPassword
	return nil
}

// NewSyncProducer creates an idempotent producer that waits for all in-sync
// replicas.
func NewSyncProducer(brokers []string, sec SecurityConfig) (sarama.SyncProducer, error) {
	saramaConfig := newProducerConfig()

	if err := configureSecurity(saramaConfig, sec); err != nil {
		return nil, fmt.Errorf("failed to configure security: %w", err)
	}

	producer, err := sarama.NewSyncProducer(brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync producer: %w", err)
	}
	return producer, nil
}

func newProducerConfig() *sarama.Config {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V2_8_0_0
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 5
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Idempotent = true
	saramaConfig.Net.MaxOpenRequests = 1
	return saramaConfig
}
