package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kmsg"
)

// TopicSpec describes a topic to create if it does not exist yet.
type TopicSpec struct {
	Name              string
	Partitions        int32
	ReplicationFactor int16
	Configs           map[string]string
}

// CompactedTopic returns a single partition log-compacted topic spec.
func CompactedTopic(name string, replicationFactor int16) TopicSpec {
	return TopicSpec{
		Name:              name,
		Partitions:        1,
		ReplicationFactor: replicationFactor,
		Configs: map[string]string{
			"cleanup.policy": "compact",
		},
	}
}

func (s TopicSpec) request(timeoutMillis int32) *kmsg.CreateTopicsRequest {
	req := kmsg.NewPtrCreateTopicsRequest()
	req.TimeoutMillis = timeoutMillis

	rt := kmsg.NewCreateTopicsRequestTopic()
	rt.Topic = s.Name
	rt.NumPartitions = s.Partitions
	rt.ReplicationFactor = s.ReplicationFactor

	for name, value := range s.Configs {
		cfg := kmsg.NewCreateTopicsRequestTopicConfig()
		cfg.Name = name
		v := value
		cfg.Value = &v
		rt.Configs = append(rt.Configs, cfg)
	}

	req.Topics = append(req.Topics, rt)
	return req
}

// EnsureTopic creates the topic described by spec. An existing topic is not
// an error and its configuration is left untouched.
func EnsureTopic(ctx context.Context, r kmsg.Requestor, spec TopicSpec) error {
	resp, err := spec.request(30_000).RequestWith(ctx, r)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", spec.Name, err)
	}

	for _, t := range resp.Topics {
		if t.Topic != spec.Name {
			continue
		}

		err := kerr.ErrorForCode(t.ErrorCode)
		if err == nil || errors.Is(err, kerr.TopicAlreadyExists) {
			return nil
		}
		return fmt.Errorf("create topic %s: %w", spec.Name, err)
	}

	return fmt.Errorf("create topic %s: missing from response", spec.Name)
}
