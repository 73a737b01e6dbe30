package cmd

import (
	"github.com/rzbill/gate/pkg/api/client"
)

// createAPIClient builds an API client honoring the --server flag and
// GATE_SERVER environment variable.
func createAPIClient() (*client.Client, error) {
	options := client.DefaultClientOptions()
	if addr := resolveServerAddr(); addr != "" {
		options.Address = addr
	}
	return client.NewClient(options)
}
