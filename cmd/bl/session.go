package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"brewline/internal/app"
	"brewline/internal/domain"
	"brewline/internal/engine"
	"brewline/internal/notify"
)

func recipeCmd() *cobra.Command {
	r := &cobra.Command{Use: "recipe", Short: "Manage recipes"}
	r.AddCommand(recipeAddCmd())
	r.AddCommand(recipeListCmd())
	return r
}

func recipeAddCmd() *cobra.Command {
	var in app.RecipeInput
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or replace a recipe",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := in.Validate(); err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				recipe := in.Recipe()
				if recipe.ID == "" {
					recipe.ID = uuid.NewString()
				}
				now := time.Now()
				recipe.CreatedAt, recipe.UpdatedAt = now, now
				if existing, err := a.Engine.Recipes.Get(ctx, recipe.ID); err == nil {
					recipe.CreatedAt = existing.CreatedAt
				}
				if err := a.Engine.Recipes.Put(ctx, recipe); err != nil {
					return err
				}
				return printJSONOrTable(recipe)
			})
		},
	}
	cmd.Flags().StringVar(&in.ID, "id", "", "recipe id (generated when empty)")
	cmd.Flags().StringVar(&in.Name, "name", "", "recipe name")
	cmd.Flags().StringVar(&in.Style, "style", "", "beer style")
	cmd.Flags().Float64Var(&in.BatchSize, "batch-size", 0, "batch size in liters")
	cmd.Flags().IntVar(&in.BoilTime, "boil-time", 60, "boil time in minutes")
	cmd.Flags().Float64Var(&in.OG, "og", 0, "target original gravity")
	cmd.Flags().Float64Var(&in.FG, "fg", 0, "target final gravity")
	cmd.Flags().StringVar(&in.Notes, "notes", "", "notes")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func recipeListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recipes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				recipes, err := a.Engine.Recipes.List(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(recipes)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Name", "Style", "Batch (L)", "Boil (min)"})
				for _, r := range recipes {
					tw.AppendRow(table.Row{r.ID, r.Name, r.Style, r.BatchSize, r.BoilTime})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func sessionCmd() *cobra.Command {
	s := &cobra.Command{
		Use:   "session",
		Short: "Run a brew day",
		Long:  "A session walks the ten brew-day steps. Commands act on the active session unless --session is given.",
	}
	s.PersistentFlags().String("session", "", "session id (default: the active session)")
	s.AddCommand(sessionStartCmd())
	s.AddCommand(sessionListCmd())
	s.AddCommand(sessionShowCmd())
	s.AddCommand(sessionActiveCmd())
	s.AddCommand(sessionGotoCmd())
	s.AddCommand(sessionNextCmd())
	s.AddCommand(sessionPrevCmd())
	s.AddCommand(sessionCompleteStepCmd())
	s.AddCommand(sessionCompleteCmd())
	s.AddCommand(sessionNoteCmd())
	s.AddCommand(sessionMeasureCmd())
	s.AddCommand(sessionStatusCmd())
	return s
}

// withSession resolves the --session flag, or the active session, before calling fn.
func withSession(cmd *cobra.Command, fn func(context.Context, *app.App, string) error) error {
	flag, _ := cmd.Flags().GetString("session")
	return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
		id, err := a.ResolveSession(ctx, flag)
		if err != nil {
			return err
		}
		return fn(ctx, a, id)
	})
}

func printSession(s *domain.BrewSession, id string) error {
	if s == nil {
		return fmt.Errorf("session %s not found", id)
	}
	if viper.GetBool("json") {
		return printJSON(s)
	}
	fmt.Printf("%s  %s  [%s]  %s\n", s.ID, s.RecipeName, s.Status, engine.StepLabel(*s))
	tw := newTable()
	tw.AppendHeader(table.Row{"", "#", "Step", "Min", "Temp", "Tasks"})
	for i, step := range s.Steps {
		marker := " "
		switch {
		case i == s.CurrentStepIndex:
			marker = ">"
		case step.Completed:
			marker = "x"
		}
		done := 0
		for _, t := range step.Tasks {
			if t.Completed {
				done++
			}
		}
		tasks := ""
		if len(step.Tasks) > 0 {
			tasks = fmt.Sprintf("%d/%d", done, len(step.Tasks))
		}
		tw.AppendRow(table.Row{marker, step.ID, step.Name, step.Duration, formatOptionalFloat(step.Temperature, "%.0f°C"), tasks})
	}
	tw.Render()
	if s.CurrentStepTargetTs != nil {
		left := max(0, int(time.Until(time.UnixMilli(*s.CurrentStepTargetTs)).Round(time.Second).Seconds()))
		fmt.Printf("timer: %s left\n", formatClock(left))
	}
	if s.ActualABV != nil {
		fmt.Printf("OG %.3f  FG %.3f  ABV %.2f%%\n", *s.ActualOG, *s.ActualFG, *s.ActualABV)
	}
	return nil
}

func printCompletion(res *engine.CompletionResult) error {
	if viper.GetBool("json") {
		return printJSON(res)
	}
	fmt.Println(res.Message)
	if res.Record != nil {
		fmt.Printf("tracking brew %s (%s)\n", res.Record.ID, res.Record.RecipeName)
	}
	if res.HandoffErr != nil {
		fmt.Fprintln(os.Stderr, "hand-off failed:", res.HandoffErr)
	}
	return nil
}

func sessionStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start <recipe-id>",
		Short: "Start brew day for a recipe",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				s, err := a.Engine.StartSessionForRecipe(ctx, args[0])
				if err != nil {
					return err
				}
				return printSession(&s, s.ID)
			})
		},
	}
	return cmd
}

func sessionListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				sessions, err := a.Engine.ListSessions(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(sessions)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Recipe", "Status", "Step", "Started"})
				for _, s := range sessions {
					tw.AppendRow(table.Row{s.ID, s.RecipeName, s.Status, engine.StepLabel(s), s.StartedAt.Local().Format(time.DateTime)})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func sessionShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a session and its steps",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, a *app.App, id string) error {
				s, err := a.Engine.GetSession(ctx, id)
				if err != nil {
					return err
				}
				return printSession(s, id)
			})
		},
	}
	return cmd
}

func sessionActiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "active",
		Short: "Show the session that is brewing or fermenting",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				s, err := a.Engine.ActiveSession(ctx)
				if err != nil {
					return err
				}
				if s == nil {
					fmt.Println("no active session")
					return nil
				}
				return printSession(s, s.ID)
			})
		},
	}
	return cmd
}

func sessionGotoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "goto <step-number>",
		Short: "Jump to a step (1-based); the timer stops",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("step number %q: %w", args[0], err)
			}
			return withSession(cmd, func(ctx context.Context, a *app.App, id string) error {
				s, err := a.Engine.GoToStep(ctx, id, n-1)
				if err != nil {
					return err
				}
				return printSession(s, id)
			})
		},
	}
	return cmd
}

func sessionNextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "next",
		Short: "Advance one step; on the last step brew day completes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, a *app.App, id string) error {
				s, res, err := a.Engine.NextStep(ctx, id)
				if err != nil {
					return err
				}
				if res != nil {
					return printCompletion(res)
				}
				return printSession(s, id)
			})
		},
	}
	return cmd
}

func sessionPrevCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prev",
		Short: "Go back one step",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, a *app.App, id string) error {
				s, err := a.Engine.PreviousStep(ctx, id)
				if err != nil {
					return err
				}
				return printSession(s, id)
			})
		},
	}
	return cmd
}

func sessionCompleteStepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete-step <step-id>",
		Short: "Mark a step completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, a *app.App, id string) error {
				s, err := a.Engine.CompleteStep(ctx, id, args[0])
				if err != nil {
					return err
				}
				return printSession(s, id)
			})
		},
	}
	return cmd
}

func sessionCompleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete",
		Short: "Finish brew day and start tracking the batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, a *app.App, id string) error {
				res, err := a.Engine.CompleteSession(ctx, id)
				if err != nil {
					return err
				}
				if res == nil {
					return fmt.Errorf("session %s not found or already completed", id)
				}
				return printCompletion(res)
			})
		},
	}
	return cmd
}

func sessionNoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "note <text>",
		Short: "Add a timestamped note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := app.CleanText(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, func(ctx context.Context, a *app.App, id string) error {
				s, err := a.Engine.AddNote(ctx, id, text)
				if err != nil {
					return err
				}
				return printSession(s, id)
			})
		},
	}
	return cmd
}

func measurementFlags(cmd *cobra.Command, in *app.MeasurementInput) {
	cmd.Flags().StringVar(&in.Type, "type", "", "og, fg, gravity, temperature, ph or volume")
	cmd.Flags().Float64Var(&in.Value, "value", 0, "reading")
	cmd.Flags().StringVar(&in.Unit, "unit", "", "unit")
	cmd.Flags().StringVar(&in.Notes, "notes", "", "notes")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("value")
}

func sessionMeasureCmd() *cobra.Command {
	var in app.MeasurementInput
	cmd := &cobra.Command{
		Use:   "measure",
		Short: "Record a reading; og and fg update the session ABV",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := in.Measurement()
			if err != nil {
				return err
			}
			return withSession(cmd, func(ctx context.Context, a *app.App, id string) error {
				s, err := a.Engine.AddMeasurement(ctx, id, m)
				if err != nil {
					return err
				}
				return printSession(s, id)
			})
		},
	}
	measurementFlags(cmd, &in)
	return cmd
}

func sessionStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <status>",
		Short: "Move the session forward (brewing, fermenting, conditioning, completed)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, a *app.App, id string) error {
				s, err := a.Engine.SetStatus(ctx, id, domain.SessionStatus(args[0]))
				if err != nil {
					return err
				}
				return printSession(s, id)
			})
		},
	}
	return cmd
}

func timerCmd() *cobra.Command {
	t := &cobra.Command{
		Use:   "timer",
		Short: "Control the current step's countdown",
		Long:  "The countdown is stored as a deadline; it keeps running while bl is not. Pausing prints the seconds to pass to resume.",
	}
	t.PersistentFlags().String("session", "", "session id (default: the active session)")
	t.AddCommand(timerStartCmd())
	t.AddCommand(timerPauseCmd())
	t.AddCommand(timerResumeCmd())
	t.AddCommand(timerClearCmd())
	t.AddCommand(timerRemainingCmd())
	t.AddCommand(timerWatchCmd())
	return t
}

func printTimer(st *engine.TimerState, id string) error {
	if st == nil {
		return fmt.Errorf("session %s not found", id)
	}
	if viper.GetBool("json") {
		return printJSON(st)
	}
	state := "stopped"
	if st.Running {
		state = "running"
	}
	fmt.Printf("%s  %s  %s\n", st.StepName, formatClock(st.Remaining), state)
	return nil
}

func timerStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start [seconds]",
		Short: "Start the countdown (default: the step's planned length)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, a *app.App, id string) error {
				secs := -1
				if len(args) == 1 {
					n, err := strconv.Atoi(args[0])
					if err != nil {
						return fmt.Errorf("seconds %q: %w", args[0], err)
					}
					if secs, err = app.TimerSeconds(n); err != nil {
						return err
					}
				}
				if secs < 0 {
					st, err := a.Engine.TimerStatus(ctx, id)
					if err != nil {
						return err
					}
					if st == nil {
						return fmt.Errorf("session %s not found", id)
					}
					secs = st.PlannedSeconds
				}
				st, err := a.Engine.StartStepTimer(ctx, id, secs)
				if err != nil {
					return err
				}
				return printTimer(st, id)
			})
		},
	}
	return cmd
}

func timerPauseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pause",
		Short: "Pause the countdown",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, a *app.App, id string) error {
				st, err := a.Engine.PauseStepTimer(ctx, id)
				if err != nil {
					return err
				}
				if err := printTimer(st, id); err != nil {
					return err
				}
				if !viper.GetBool("json") {
					fmt.Printf("resume with: bl timer resume %d\n", st.Remaining)
				}
				return nil
			})
		},
	}
	return cmd
}

func timerResumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume <seconds>",
		Short: "Resume the countdown with the seconds printed by pause",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("seconds %q: %w", args[0], err)
			}
			secs, err := app.TimerSeconds(n)
			if err != nil {
				return err
			}
			return withSession(cmd, func(ctx context.Context, a *app.App, id string) error {
				st, err := a.Engine.ResumeStepTimer(ctx, id, secs)
				if err != nil {
					return err
				}
				return printTimer(st, id)
			})
		},
	}
	return cmd
}

func timerClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear the countdown and cancel its alert",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, a *app.App, id string) error {
				st, err := a.Engine.ClearStepTimer(ctx, id)
				if err != nil {
					return err
				}
				return printTimer(st, id)
			})
		},
	}
	return cmd
}

func timerRemainingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remaining",
		Short: "Show the time left on the current step",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, a *app.App, id string) error {
				st, err := a.Engine.TimerStatus(ctx, id)
				if err != nil {
					return err
				}
				return printTimer(st, id)
			})
		},
	}
	return cmd
}

func timerWatchCmd() *cobra.Command {
	var deliver bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the countdown until interrupted; completes the step when time runs out",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, a *app.App, id string) error {
				bell := &notify.TerminalNotifier{Out: os.Stdout}
				if deliver {
					go a.Dispatcher(bell).Run(ctx)
				}
				obs := a.Observer(id)
				obs.OnTick = func(st engine.TimerState) {
					if viper.GetBool("json") {
						_ = printJSON(st)
						return
					}
					fmt.Printf("\r%-40s %s", st.StepName, formatClock(st.Remaining))
				}
				obs.OnStepElapsed = func(s domain.BrewSession) {
					fmt.Printf("\nstep done: %s\n", engine.StepLabel(s))
				}
				err := obs.Run(ctx)
				fmt.Println()
				if ctx.Err() != nil {
					return nil
				}
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&deliver, "notify", true, "ring the terminal for due alerts while watching")
	return cmd
}

func taskCmd() *cobra.Command {
	t := &cobra.Command{
		Use:   "task",
		Short: "Checklist items of the current step",
		Long:  "Tasks added or removed here are also remembered for the same step of future sessions.",
	}
	t.PersistentFlags().String("session", "", "session id (default: the active session)")
	t.AddCommand(taskAddCmd())
	t.AddCommand(taskToggleCmd())
	t.AddCommand(taskRemoveCmd())
	return t
}

func printTasks(s *domain.BrewSession, id string) error {
	if s == nil {
		return fmt.Errorf("session %s not found", id)
	}
	step, ok := s.CurrentStep()
	if !ok {
		return fmt.Errorf("session %s has no steps", id)
	}
	if viper.GetBool("json") {
		return printJSON(step.Tasks)
	}
	tw := newTable()
	tw.SetTitle(step.Name)
	tw.AppendHeader(table.Row{"ID", "Done", "Task"})
	for _, t := range step.Tasks {
		done := ""
		if t.Completed {
			done = "x"
		}
		tw.AppendRow(table.Row{t.ID, done, t.Text})
	}
	tw.Render()
	return nil
}

func taskAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <text>",
		Short: "Add a task to the current step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := app.CleanText(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, func(ctx context.Context, a *app.App, id string) error {
				s, err := a.Engine.AddStepTask(ctx, id, text)
				if err != nil {
					return err
				}
				return printTasks(s, id)
			})
		},
	}
	return cmd
}

func taskToggleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "toggle <task-id>",
		Short: "Check or uncheck a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, a *app.App, id string) error {
				s, err := a.Engine.ToggleStepTask(ctx, id, args[0])
				if err != nil {
					return err
				}
				return printTasks(s, id)
			})
		},
	}
	return cmd
}

func taskRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <task-id>",
		Short: "Remove a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, a *app.App, id string) error {
				s, err := a.Engine.RemoveStepTask(ctx, id, args[0])
				if err != nil {
					return err
				}
				return printTasks(s, id)
			})
		},
	}
	return cmd
}
