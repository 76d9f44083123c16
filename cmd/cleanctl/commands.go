package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/cleanflow/api/internal/aggregate"
	"github.com/cleanflow/api/internal/auth"
	"github.com/cleanflow/api/internal/config"
	"github.com/cleanflow/api/internal/model"
	"github.com/cleanflow/api/internal/service"
)

// seedFile is the fixture layout read by `cleanctl seed`
type seedFile struct {
	Properties []model.CreatePropertyRequest `yaml:"properties"`
}

func readSeed(r io.Reader) ([]model.CreatePropertyRequest, error) {
	var f seedFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return f.Properties, nil
}

// seedProperties creates every valid request. Properties that already
// exist are skipped so a fixture can be applied more than once.
func seedProperties(ctx context.Context, svc *service.PropertyService, reqs []model.CreatePropertyRequest) (created, skipped int, err error) {
	v := validator.New()
	for i := range reqs {
		req := &reqs[i]
		if err := v.Struct(req); err != nil {
			return created, skipped, fmt.Errorf("property %d (%s): %w", i, req.PropertyID, err)
		}
		if _, err := svc.Create(ctx, req); err != nil {
			if errors.Is(err, model.ErrDuplicate) {
				skipped++
				continue
			}
			return created, skipped, err
		}
		created++
	}
	return created, skipped, nil
}

func seedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create properties from a YAML fixture",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()
			reqs, err := readSeed(f)
			if err != nil {
				return err
			}
			return withProperties(cmd.Context(), func(ctx context.Context, svc *service.PropertyService) error {
				created, skipped, err := seedProperties(ctx, svc, reqs)
				fmt.Printf("created %d properties, skipped %d existing\n", created, skipped)
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML fixture with a properties list")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <propertyId>",
		Short: "Show the derived status of a property",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProperties(cmd.Context(), func(ctx context.Context, svc *service.PropertyService) error {
				st, err := svc.GetPropertyStatus(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(st)
				}
				renderStatus(os.Stdout, st)
				return nil
			})
		},
	}
}

func renderStatus(w io.Writer, st *model.PropertyStatus) {
	bucket := string(st.Bucket)
	if !st.Included {
		bucket = "excluded"
	}
	fmt.Fprintf(w, "%s  bucket=%s active=%t version=%d\n", st.PropertyID, bucket, st.IsActive, st.Version)

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"#", "Room", "Tasks", "Completed", "Hint"})
	for _, r := range st.RoomStatuses {
		hint := ""
		if r.HintMismatch {
			hint = "stale"
		}
		tw.AppendRow(table.Row{r.Index, r.RoomType, fmt.Sprintf("%d/%d", r.CompletedTasks, r.TotalTasks), r.Completed, hint})
	}
	tw.Render()
}

func assignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assign <propertyId> [cleanerId]",
		Short: "Assign a property to a cleaner, or clear it when no cleaner is given",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			assignee := ""
			if len(args) == 2 {
				assignee = args[1]
			}
			return withProperties(cmd.Context(), func(ctx context.Context, svc *service.PropertyService) error {
				p, err := svc.Assign(ctx, args[0], assignee)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				fmt.Printf("%s assigned to %q\n", p.PropertyID, p.AssignedTo)
				return nil
			})
		},
	}
}

func dashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Summarize every property",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProperties(cmd.Context(), func(ctx context.Context, svc *service.PropertyService) error {
				props, err := svc.List(ctx, true)
				if err != nil {
					return err
				}
				d := aggregate.Summarize(props)
				if viper.GetBool("json") {
					return printJSON(d)
				}
				renderDashboard(os.Stdout, props, d)
				return nil
			})
		},
	}
}

func renderDashboard(w io.Writer, props []*model.Property, d model.Dashboard) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Property", "Name", "Bucket", "Tasks", "Active"})
	for _, p := range props {
		bucket, included := aggregate.Classify(p)
		label := string(bucket)
		if !included {
			label = "excluded"
		}
		total, completed := p.TaskCount()
		tw.AppendRow(table.Row{p.PropertyID, p.Name, label, fmt.Sprintf("%d/%d", completed, total), p.IsActive})
	}
	tw.AppendFooter(table.Row{"", "", fmt.Sprintf("%d/%d/%d", d.NotStarted, d.InProgress, d.Completed), fmt.Sprintf("%.1f%%", d.CompletionRate), ""})
	tw.Render()
}

func reportsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reports",
		Short: "List cleaning reports for included properties",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProperties(cmd.Context(), func(ctx context.Context, svc *service.PropertyService) error {
				reports, err := svc.Reports(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(reports)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Property", "Bucket", "Done", "Photos", "Open issues"})
				for _, r := range reports {
					tw.AppendRow(table.Row{r.PropertyID, r.Bucket, fmt.Sprintf("%d%%", r.CompletionPercentage), r.Photos, len(r.UnresolvedIssues)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func tokenCmd() *cobra.Command {
	var userID, role string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an HMAC token signed with the server's JWT secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			switch role {
			case model.RoleCleaner, model.RoleAdmin, model.RoleSystem:
			default:
				return fmt.Errorf("unknown role %q", role)
			}
			token, err := auth.SignLegacyToken(cfg.JWT.Secret, userID, role)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "operator", "actor id carried by the token")
	cmd.Flags().StringVar(&role, "role", model.RoleAdmin, "cleaner, admin or system")
	return cmd
}
