package cluster

import (
	"github.com/Vastxiao/mongocheckd/internal/util"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// parseURI builds client options from a connection string. It sets
// `directConnection` if:
//   - There is only 1 host.
//   - The connection string lacks parameters that contraindicate a
//     direct connection.
//
// This mimics mongosh, which lets a single-host URI reach a lone
// replica-set member without naming the set. The returned bool reports
// whether direct connection was added.
func parseURI(field, in string) (*options.ClientOptions, bool, error) {
	if in == "" {
		return nil, false, util.NewConfigError(field, "connection string is required")
	}

	opts := options.Client().ApplyURI(in)
	if err := opts.Validate(); err != nil {
		return nil, false, util.NewConfigError(field, "parsing connection string: %v", err)
	}

	var added bool

	switch len(opts.Hosts) {
	case 0:
		return nil, false, util.NewConfigError(field, "connection string has no hosts")
	case 1:
		if opts.ReplicaSet == nil && opts.Direct == nil && opts.LoadBalanced == nil {
			opts.SetDirect(true)
			added = true
		}
	}

	return opts, added, nil
}

// ValidateURI reports a *util.ConfigError if in cannot be used to connect.
func ValidateURI(field, in string) error {
	_, _, err := parseURI(field, in)
	return err
}

func hostsOf(opts *options.ClientOptions) []string {
	return lo.Uniq(opts.Hosts)
}
