package commands

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/komparu/komparu-go/pkg/komparu"
)

// BatchFile is the YAML document read by the batch command.
//
//	requests:
//	  phones:
//	    resource: product
//	    params:
//	      type: phone
//	  first:
//	    resource: product
//	    id: "1"
type BatchFile struct {
	Requests map[string]BatchRequest `json:"requests" yaml:"requests"`
}

// BatchRequest is one named GET in a batch file. A request with an id is sent
// as a show, otherwise as a list.
type BatchRequest struct {
	Resource string         `json:"resource"         yaml:"resource"`
	ID       string         `json:"id,omitempty"     yaml:"id,omitempty"`
	Params   map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// BatchOutput is the printed result of one batch member.
type BatchOutput struct {
	Body  any `json:"body,omitempty"  yaml:"body,omitempty"`
	Error any `json:"error,omitempty" yaml:"error,omitempty"`
}

// LoadBatchFile reads and validates a batch file.
func LoadBatchFile(path string) (*BatchFile, error) {
	// path is supplied by the operator on the command line
	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading batch file: %w", err)
	}

	var file BatchFile

	err = yaml.Unmarshal(data, &file)
	if err != nil {
		return nil, fmt.Errorf("parsing batch file: %w", err)
	}

	if len(file.Requests) == 0 {
		return nil, ErrNoRequests
	}

	for name, req := range file.Requests {
		if req.Resource == "" {
			return nil, fmt.Errorf("request %s: %w", name, komparu.ErrMissingResource)
		}
	}

	return &file, nil
}

// QueueBatch queues every request of file on client, in name order.
func QueueBatch(ctx context.Context, client komparu.Client, file *BatchFile) error {
	names := make([]string, 0, len(file.Requests))
	for name := range file.Requests {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		req := file.Requests[name]

		err := client.Queue(name, func(c komparu.Client) error {
			c.Resource(req.Resource).SetParams(req.Params)

			var err error
			if req.ID != "" {
				_, err = c.Show(ctx, req.ID, nil)
			} else {
				_, err = c.Get(ctx, nil)
			}

			return err
		})
		if err != nil {
			return fmt.Errorf("queueing batch: %w", err)
		}
	}

	return nil
}

// NewBatchCommand creates the batch command.
func NewBatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "batch FILE",
		Short: "Run a batch of named GET requests",
		Long: `Queue the named requests of a YAML batch file and dispatch them
concurrently. Every name is reported, failures are printed as data.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			file, err := LoadBatchFile(args[0])
			if err != nil {
				return err
			}

			client, err := CreateClient(ctx)
			if err != nil {
				return err
			}

			err = QueueBatch(ctx, client, file)
			if err != nil {
				return err
			}

			results := client.Flush(ctx)

			output := make(map[string]BatchOutput, len(results))
			for name, result := range results {
				output[name] = BatchOutput{Body: result.Body, Error: result.Error}
			}

			return Output(output)
		},
	}
}
