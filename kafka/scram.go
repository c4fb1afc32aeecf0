package kafka

import (
	"crypto/sha256"
	"crypto/sha512"
	"hash"

	"github.com/IBM/sarama"
	"github.com/xdg-go/scram"
)

var (
	sha256Generator scram.HashGeneratorFcn = func() hash.Hash { return sha256.New() }
	sha512Generator scram.HashGeneratorFcn = func() hash.Hash { return sha512.New() }
)

// scramClient adapts an xdg-go/scram conversation to sarama.SCRAMClient
type scramClient struct {
	generator    scram.HashGeneratorFcn
	conversation *scram.ClientConversation
}

var _ sarama.SCRAMClient = (*scramClient)(nil)

func newSCRAMClient(generator scram.HashGeneratorFcn) func() sarama.SCRAMClient {
	return func() sarama.SCRAMClient {
		return &scramClient{generator: generator}
	}
}

// Begin starts a new conversation
func (s *scramClient) Begin(userName, password, authzID string) error {
	client, err := s.generator.NewClient(userName, password, authzID)
	if err != nil {
		return err
	}
	s.conversation = client.NewConversation()
	return nil
}

// Step answers a server challenge
func (s *scramClient) Step(challenge string) (string, error) {
	return s.conversation.Step(challenge)
}

// Done whether the exchange completed
func (s *scramClient) Done() bool {
	return s.conversation.Done()
}
