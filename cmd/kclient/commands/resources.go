package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/komparu/komparu-go/pkg/komparu"
)

// RequestOptions holds the flags shared by the resource commands.
type RequestOptions struct {
	Headers []string
	NoCache bool
	AsData  bool
	Data    string
	File    string
}

func addRequestFlags(cmd *cobra.Command, opts *RequestOptions) {
	cmd.Flags().StringArrayVarP(&opts.Headers, "header", "H", nil, "extra request header ('Name: value'), repeatable")
	cmd.Flags().BoolVar(&opts.AsData, "errors-as-data", false, "print API errors as data instead of failing")
}

func addBodyFlags(cmd *cobra.Command, opts *RequestOptions) {
	cmd.Flags().StringVar(&opts.Data, "data", "", "request body as JSON")
	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "request body from a JSON or YAML file")
}

// prepare builds a client addressed at resource with params and headers applied.
func prepare(ctx context.Context, opts *RequestOptions, resource string, paramArgs []string) (komparu.Client, komparu.Params, error) {
	params, err := ParseParams(paramArgs)
	if err != nil {
		return nil, nil, err
	}

	headers, err := ParseHeaders(opts.Headers)
	if err != nil {
		return nil, nil, err
	}

	client, err := CreateClient(ctx)
	if err != nil {
		return nil, nil, err
	}

	client.Resource(resource)

	for name, value := range headers {
		client.Header(name, value)
	}

	return client, params, nil
}

func (o *RequestOptions) callOptions() []komparu.CallOption {
	var opts []komparu.CallOption

	if o.NoCache {
		opts = append(opts, komparu.SkipCache())
	}

	if o.AsData {
		opts = append(opts, komparu.WithErrorMode(komparu.ErrorsAsData))
	}

	return opts
}

// NewGetCommand creates the get command.
func NewGetCommand() *cobra.Command {
	var opts RequestOptions

	cmd := &cobra.Command{
		Use:   "get RESOURCE [key=value...]",
		Short: "List a resource",
		Long:  "Fetch a resource collection, filtered by the given parameters",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			client, params, err := prepare(ctx, &opts, args[0], args[1:])
			if err != nil {
				return err
			}

			body, err := client.Get(ctx, params, opts.callOptions()...)
			if err != nil {
				return err //nolint:wrapcheck // mapped API errors are printed as is
			}

			return Output(body)
		},
	}

	addRequestFlags(cmd, &opts)
	cmd.Flags().BoolVar(&opts.NoCache, "no-cache", false, "bypass the response cache")

	return cmd
}

// NewShowCommand creates the show command.
func NewShowCommand() *cobra.Command {
	var opts RequestOptions

	cmd := &cobra.Command{
		Use:   "show RESOURCE ID [key=value...]",
		Short: "Show a single record",
		Long:  "Fetch one record of a resource by id",
		Args:  cobra.MinimumNArgs(2), //nolint:mnd
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			client, params, err := prepare(ctx, &opts, args[0], args[2:])
			if err != nil {
				return err
			}

			body, err := client.Show(ctx, args[1], params, opts.callOptions()...)
			if err != nil {
				return err //nolint:wrapcheck // mapped API errors are printed as is
			}

			return Output(body)
		},
	}

	addRequestFlags(cmd, &opts)
	cmd.Flags().BoolVar(&opts.NoCache, "no-cache", false, "bypass the response cache")

	return cmd
}

// NewStoreCommand creates the store command.
func NewStoreCommand() *cobra.Command {
	var opts RequestOptions

	cmd := &cobra.Command{
		Use:   "store RESOURCE [key=value...]",
		Short: "Create a record",
		Long:  "Create a record; key=value pairs are merged with the --data or --file body",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			body, err := ReadBody(opts.Data, opts.File)
			if err != nil {
				return err
			}

			client, params, err := prepare(ctx, &opts, args[0], args[1:])
			if err != nil {
				return err
			}

			result, err := client.SetParams(params).Store(ctx, body, opts.callOptions()...)
			if err != nil {
				return err //nolint:wrapcheck // mapped API errors are printed as is
			}

			return Output(result)
		},
	}

	addRequestFlags(cmd, &opts)
	addBodyFlags(cmd, &opts)

	return cmd
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand() *cobra.Command {
	var (
		opts  RequestOptions
		patch bool
	)

	cmd := &cobra.Command{
		Use:   "update RESOURCE ID [key=value...]",
		Short: "Update a record",
		Long:  "Replace (PUT) or, with --patch, partially update (PATCH) a record",
		Args:  cobra.MinimumNArgs(2), //nolint:mnd
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			body, err := ReadBody(opts.Data, opts.File)
			if err != nil {
				return err
			}

			client, params, err := prepare(ctx, &opts, args[0], args[2:])
			if err != nil {
				return err
			}

			client.SetParams(params)

			var result any
			if patch {
				result, err = client.Patch(ctx, args[1], body, opts.callOptions()...)
			} else {
				result, err = client.Update(ctx, args[1], body, opts.callOptions()...)
			}

			if err != nil {
				return err //nolint:wrapcheck // mapped API errors are printed as is
			}

			return Output(result)
		},
	}

	addRequestFlags(cmd, &opts)
	addBodyFlags(cmd, &opts)
	cmd.Flags().BoolVar(&patch, "patch", false, "send a PATCH instead of a PUT")

	return cmd
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand() *cobra.Command {
	var opts RequestOptions

	cmd := &cobra.Command{
		Use:   "delete RESOURCE ID [key=value...]",
		Short: "Delete a record",
		Long:  "Delete one record of a resource by id",
		Args:  cobra.MinimumNArgs(2), //nolint:mnd
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			client, params, err := prepare(ctx, &opts, args[0], args[2:])
			if err != nil {
				return err
			}

			result, err := client.Delete(ctx, args[1], params, opts.callOptions()...)
			if err != nil {
				return err //nolint:wrapcheck // mapped API errors are printed as is
			}

			return Output(result)
		},
	}

	addRequestFlags(cmd, &opts)

	return cmd
}
