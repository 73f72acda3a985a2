package main

import (
	"epoccore/internal/archive"
	"epoccore/pkg/domain"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func parseUID(arg string) (int, error) {
	uid, err := strconv.Atoi(arg)
	if err != nil || uid <= 0 {
		return 0, fmt.Errorf("invalid uid %q", arg)
	}
	return uid, nil
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved universes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc, err := a.service(ctx)
			if err != nil {
				return err
			}
			uids, err := svc.Universes(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "UID\tSHORTNAME\tREVISION\tELEMENTS")
			for _, uid := range uids {
				doc, err := svc.Open(ctx, uid)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\n", uid, doc.Root.Shortname, doc.Root.Revision, len(doc.Root.AllElements()))
				svc.Forget(doc)
			}
			return w.Flush()
		},
	}
}

func newTemplatesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "templates [type]",
		Short: "List persisted templates, optionally of one object type",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t := domain.ObjAll
			if len(args) == 1 {
				t = domain.ObjType(args[0])
				if !t.Valid() && t != domain.ObjAll {
					return fmt.Errorf("unknown object type %q", args[0])
				}
			}
			ctx := cmd.Context()
			svc, err := a.service(ctx)
			if err != nil {
				return err
			}
			templates, err := svc.Templates(ctx, t)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TYPE\tUID\tSHORTNAME\tREVISION")
			for _, o := range templates {
				b := o.Meta()
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", o.Type(), b.UID, b.Shortname, b.Revision)
			}
			return w.Flush()
		},
	}
}

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <universe-uid>",
		Short: "Report rule violations of a saved universe",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := parseUID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			svc, err := a.service(ctx)
			if err != nil {
				return err
			}
			doc, err := svc.Open(ctx, uid)
			if err != nil {
				return err
			}
			res, err := svc.Validate(ctx, doc, nil)
			if err != nil {
				return err
			}
			printViolations(a.stdout, res)
			if res.HasBlocking() {
				return domain.RuleViolationError{Result: res}
			}
			return nil
		},
	}
}

func newExportCmd(a *app) *cobra.Command {
	var element string
	cmd := &cobra.Command{
		Use:   "export <universe-uid> <key>",
		Short: "Write a universe, or one of its elements, to the archive store",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := parseUID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			svc, err := a.service(ctx)
			if err != nil {
				return err
			}
			doc, err := svc.Open(ctx, uid)
			if err != nil {
				return err
			}
			var obj domain.Object = doc.Root
			if element != "" {
				obj, err = findElement(doc.Root, element)
				if err != nil {
					return err
				}
			}
			info, err := svc.Export(ctx, doc, obj, args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "exported %s %q to %s (%d bytes)\n", obj.Type(), obj.Meta().Shortname, info.Key, info.Size)
			return nil
		},
	}
	cmd.Flags().StringVar(&element, "element", "", "export only the element with this shortname")
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	var into int
	cmd := &cobra.Command{
		Use:   "import <key>",
		Short: "Read an archive, repair its links and save it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := a.service(ctx)
			if err != nil {
				return err
			}
			var (
				doc      *domain.Document
				obj      domain.Object
				repaired int
			)
			if into > 0 {
				if doc, err = svc.Open(ctx, into); err != nil {
					return err
				}
				if obj, repaired, err = svc.Import(ctx, doc, args[0], nil); err != nil {
					return err
				}
			} else {
				if doc, repaired, err = svc.ImportUniverse(ctx, args[0]); err != nil {
					return err
				}
				obj = doc.Root
			}
			res, err := svc.Save(ctx, doc)
			if err != nil {
				printViolations(a.stdout, res)
				return err
			}
			fmt.Fprintf(a.stdout, "imported %s %q as uid %d (%d links repaired)\n", obj.Type(), obj.Meta().Shortname, obj.Meta().UID, repaired)
			return nil
		},
	}
	cmd.Flags().IntVar(&into, "into", 0, "uid of the universe to import an element archive into")
	return cmd
}

func newSchemaCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the archive JSON Schema",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			data, err := archive.SchemaJSON()
			if err != nil {
				return err
			}
			_, err = a.stdout.Write(data)
			return err
		},
	}
}

func findElement(u *domain.Universe, shortname string) (*domain.Element, error) {
	for _, e := range u.AllElements() {
		if e.Shortname == shortname {
			return e, nil
		}
	}
	return nil, fmt.Errorf("universe %q has no element %q", u.Shortname, shortname)
}

func printViolations(w io.Writer, res domain.Result) {
	if len(res.Violations) == 0 {
		fmt.Fprintln(w, "no violations")
		return
	}
	for _, v := range res.Violations {
		fmt.Fprintln(w, v.String())
	}
}
