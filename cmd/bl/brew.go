package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"brewline/internal/app"
	"brewline/internal/domain"
	"brewline/internal/engine"
)

func brewCmd() *cobra.Command {
	b := &cobra.Command{
		Use:   "brew",
		Short: "Track batches after brew day",
		Long:  "A brew moves brewing -> fermenting -> conditioning -> completed -> archived. Stage reminders are scheduled from the target days.",
	}
	b.AddCommand(brewStartCmd())
	b.AddCommand(brewListCmd())
	b.AddCommand(brewShowCmd())
	b.AddCommand(brewFermentCmd())
	b.AddCommand(brewConditionCmd())
	b.AddCommand(brewCompleteCmd())
	b.AddCommand(brewArchiveCmd())
	b.AddCommand(brewNoteCmd())
	b.AddCommand(brewMeasureCmd())
	b.AddCommand(brewDeleteCmd())
	return b
}

func printBrew(t *engine.Tracker, b *domain.BrewRecord, id string) error {
	if b == nil {
		return fmt.Errorf("brew %s not found", id)
	}
	view := t.View(*b)
	if viper.GetBool("json") {
		return printJSON(view)
	}
	tw := newTable()
	tw.SetTitle(fmt.Sprintf("%s  [%s]", view.RecipeName, view.Status))
	tw.AppendRows([]table.Row{
		{"ID", view.ID},
		{"Brewed", view.BrewDate.Local().Format(time.DateOnly)},
		{"Fermentation day", view.FermentationDay},
		{"Progress", fmt.Sprintf("%.0f%%", view.Progress)},
		{"Estimated completion", view.EstimatedCompletion.Local().Format(time.DateOnly)},
		{"OG / FG", formatOptionalFloat(view.OriginalGravity, "%.3f") + " / " + formatOptionalFloat(view.FinalGravity, "%.3f")},
		{"ABV", formatOptionalFloat(view.MeasuredABV, "%.1f%%")},
		{"Targets (days)", fmt.Sprintf("%d fermenting, %d conditioning", view.TargetFermentationDays, view.TargetConditioningDays)},
	})
	tw.Render()
	if len(view.QuickNotes) > 0 {
		notes := newTable()
		notes.AppendHeader(table.Row{"When", "Note"})
		for _, n := range view.QuickNotes {
			notes.AppendRow(table.Row{n.Timestamp.Local().Format(time.DateTime), n.Text})
		}
		notes.Render()
	}
	return nil
}

func brewStartCmd() *cobra.Command {
	var opts engine.NewBrewOptions
	var recipeID string
	var batchSize, temp float64
	cmd := &cobra.Command{
		Use:   "start <recipe-name>",
		Short: "Start tracking a batch brewed outside a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := app.CleanText(args[0])
			if err != nil {
				return err
			}
			opts.RecipeName = name
			opts.RecipeID = optionalString(recipeID)
			if cmd.Flags().Changed("batch-size") {
				opts.BatchSize = &batchSize
			}
			if cmd.Flags().Changed("temp") {
				opts.FermentationTemp = &temp
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				b, err := a.Tracker.StartNewBrew(ctx, opts)
				if err != nil {
					return err
				}
				return printBrew(a.Tracker, &b, b.ID)
			})
		},
	}
	cmd.Flags().StringVar(&recipeID, "recipe-id", "", "recipe id")
	cmd.Flags().Float64Var(&batchSize, "batch-size", 0, "batch size in liters")
	cmd.Flags().Float64Var(&temp, "temp", 0, "fermentation temperature")
	cmd.Flags().IntVar(&opts.TargetFermentationDays, "fermentation-days", 0, "target fermentation days (default from config)")
	cmd.Flags().IntVar(&opts.TargetConditioningDays, "conditioning-days", 0, "target conditioning days (default from config)")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "notes")
	return cmd
}

func brewListCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				active, archived, err := a.Tracker.ListBrews(ctx)
				if err != nil {
					return err
				}
				if !all {
					archived = nil
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"active": views(a.Tracker, active), "archived": views(a.Tracker, archived)})
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Recipe", "Status", "Day", "Progress", "Ready"})
				tw.SetColumnConfigs([]table.ColumnConfig{{Number: 5, Align: text.AlignRight}})
				for _, v := range views(a.Tracker, append(active, archived...)) {
					tw.AppendRow(table.Row{v.ID, v.RecipeName, v.Status, v.FermentationDay, fmt.Sprintf("%.0f%%", v.Progress), v.EstimatedCompletion.Local().Format(time.DateOnly)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include archived batches")
	return cmd
}

func views(t *engine.Tracker, records []domain.BrewRecord) []engine.BrewView {
	out := make([]engine.BrewView, 0, len(records))
	for _, b := range records {
		out = append(out, t.View(b))
	}
	return out
}

func brewShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <brew-id>",
		Short: "Show a batch with its progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				b, err := a.Tracker.GetBrew(ctx, args[0])
				if err != nil {
					return err
				}
				return printBrew(a.Tracker, b, args[0])
			})
		},
	}
	return cmd
}

// targetDaysFlag returns the --days value when it was given.
func targetDaysFlag(cmd *cobra.Command, days int) (*int, error) {
	if !cmd.Flags().Changed("days") {
		return nil, nil
	}
	return app.TargetDays(&days)
}

func brewFermentCmd() *cobra.Command {
	var og string
	var days int
	var temp float64
	cmd := &cobra.Command{
		Use:   "ferment <brew-id>",
		Short: "Pitch yeast: record OG and start fermentation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gravity, err := app.ParseGravity(og)
			if err != nil {
				return err
			}
			target, err := targetDaysFlag(cmd, days)
			if err != nil {
				return err
			}
			var tempPtr *float64
			if cmd.Flags().Changed("temp") {
				tempPtr = &temp
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				b, err := a.Tracker.StartFermentation(ctx, args[0], gravity, tempPtr, target)
				if err != nil {
					return err
				}
				return printBrew(a.Tracker, b, args[0])
			})
		},
	}
	cmd.Flags().StringVar(&og, "og", "", "original gravity, e.g. 1.050")
	cmd.Flags().IntVar(&days, "days", 0, "target fermentation days")
	cmd.Flags().Float64Var(&temp, "temp", 0, "fermentation temperature")
	_ = cmd.MarkFlagRequired("og")
	return cmd
}

func brewConditionCmd() *cobra.Command {
	var fg string
	var days int
	cmd := &cobra.Command{
		Use:   "condition <brew-id>",
		Short: "Record FG and start conditioning",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gravity, err := app.ParseGravity(fg)
			if err != nil {
				return err
			}
			target, err := targetDaysFlag(cmd, days)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				b, err := a.Tracker.StartConditioning(ctx, args[0], gravity, target)
				if err != nil {
					return err
				}
				return printBrew(a.Tracker, b, args[0])
			})
		},
	}
	cmd.Flags().StringVar(&fg, "fg", "", "final gravity, e.g. 1.010")
	cmd.Flags().IntVar(&days, "days", 0, "target conditioning days")
	_ = cmd.MarkFlagRequired("fg")
	return cmd
}

func brewTransitionCmd(use, short string, fn func(*engine.Tracker) func(context.Context, string) (*domain.BrewRecord, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <brew-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				b, err := fn(a.Tracker)(ctx, args[0])
				if err != nil {
					return err
				}
				return printBrew(a.Tracker, b, args[0])
			})
		},
	}
}

func brewCompleteCmd() *cobra.Command {
	return brewTransitionCmd("complete", "Package the batch", func(t *engine.Tracker) func(context.Context, string) (*domain.BrewRecord, error) {
		return t.CompleteBrew
	})
}

func brewArchiveCmd() *cobra.Command {
	return brewTransitionCmd("archive", "Archive a completed batch", func(t *engine.Tracker) func(context.Context, string) (*domain.BrewRecord, error) {
		return t.ArchiveBrew
	})
}

func brewNoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "note <brew-id> <text>",
		Short: "Add a quick note",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := app.CleanText(args[1])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				b, err := a.Tracker.AddQuickNote(ctx, args[0], text)
				if err != nil {
					return err
				}
				return printBrew(a.Tracker, b, args[0])
			})
		},
	}
	return cmd
}

func brewMeasureCmd() *cobra.Command {
	var in app.MeasurementInput
	cmd := &cobra.Command{
		Use:   "measure <brew-id>",
		Short: "Record a reading against the batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := in.Measurement()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				b, err := a.Tracker.AddMeasurement(ctx, args[0], m)
				if err != nil {
					return err
				}
				return printBrew(a.Tracker, b, args[0])
			})
		},
	}
	measurementFlags(cmd, &in)
	return cmd
}

func brewDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <brew-id>",
		Short: "Delete a batch and cancel its reminders",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				deleted, err := a.Tracker.DeleteBrew(ctx, args[0])
				if err != nil {
					return err
				}
				if !deleted {
					return fmt.Errorf("brew %s not found", args[0])
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"deleted": true, "id": args[0]})
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
	return cmd
}
