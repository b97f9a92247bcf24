package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nrfta/multiquery/query"
)

func newBuildCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Print the list query of a collection and fragment",
		Example: `  multiquery build --schema schema.yaml --collection Posts --fragment PostsList
  multiquery build --schema schema.yaml --collection Posts --fragment PostsList --var userId=String`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.require("collection", "fragment"); err != nil {
				return err
			}

			reg, err := a.registry()
			if err != nil {
				return err
			}

			coll, err := reg.Collection(a.v.GetString("collection"))
			if err != nil {
				return err
			}

			fragmentName := a.v.GetString("fragment")
			fragment, err := reg.FragmentText(fragmentName)
			if err != nil {
				return err
			}

			vars, err := cmd.Flags().GetStringToString("var")
			if err != nil {
				return err
			}

			doc, err := query.Build(query.Spec{
				CollectionName: coll.Name,
				TypeName:       coll.TypeName,
				ResolverName:   coll.MultiResolverName,
				FragmentName:   fragmentName,
				Fragment:       fragment,
				ExtraVariables: vars,
			})
			if err != nil {
				return err
			}

			a.logger.Debug().Str("operation", doc.OperationName).Msg("built list query")
			_, err = fmt.Fprint(cmd.OutOrStdout(), doc.Text)
			return err
		},
	}

	flags := cmd.Flags()
	flags.String("collection", "", "collection name")
	flags.String("fragment", "", "fragment name")
	flags.StringToString("var", nil, "extra resolver variable as name=GraphQLType (repeatable)")

	return cmd
}
