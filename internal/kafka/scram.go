package kafka

import (
	"github.com/IBM/sarama"
	"github.com/xdg-go/scram"
)

// scramClient runs one SCRAM conversation for sarama.
type scramClient struct {
	hash         scram.HashGeneratorFcn
	conversation *scram.ClientConversation
}

func newSCRAMClientGenerator(mechanism string) func() sarama.SCRAMClient {
	hash := scram.SHA512
	if mechanism == sarama.SASLTypeSCRAMSHA256 {
		hash = scram.SHA256
	}

	return func() sarama.SCRAMClient {
		return &scramClient{hash: hash}
	}
}

func (client *scramClient) Begin(userName, password, authzID string) error {
	session, err := client.hash.NewClient(userName, password, authzID)
	if err != nil {
		return err
	}

	client.conversation = session.NewConversation()

	return nil
}

func (client *scramClient) Step(challenge string) (string, error) {
	return client.conversation.Step(challenge)
}

func (client *scramClient) Done() bool {
	return client.conversation.Done()
}
