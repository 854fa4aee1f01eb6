package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"cwkhub/internal/domain"
	"cwkhub/internal/engine"
	"cwkhub/internal/repo"
	"cwkhub/internal/scheduling"
)

func termCmd() *cobra.Command {
	term := &cobra.Command{Use: "term", Short: "Manage terms"}
	var opts engine.TermCreateOptions
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a term",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts.ActorID = actorID()
				t, err := e.CreateTerm(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	create.Flags().StringVar(&opts.ID, "id", "", "term id (generated when empty)")
	create.Flags().StringVar(&opts.Name, "name", "", "term name")
	create.Flags().StringVar(&opts.StartDate, "start", "", "first day, YYYY-MM-DD")
	create.Flags().StringVar(&opts.EndDate, "end", "", "last day, YYYY-MM-DD")
	term.AddCommand(create)
	term.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List terms",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListTerms(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Name", "Start", "End")
				for _, t := range items {
					tw.AppendRow(row(t.ID, t.Name, t.StartDate, t.EndDate))
				}
				tw.Render()
				return nil
			})
		},
	})
	return term
}

func classCmd() *cobra.Command {
	class := &cobra.Command{Use: "class", Short: "Manage classes"}
	var opts engine.ClassCreateOptions
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a class in a term",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts.ActorID = actorID()
				c, err := e.CreateClass(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	create.Flags().StringVar(&opts.ID, "id", "", "class id (generated when empty)")
	create.Flags().StringVar(&opts.Name, "name", "", "class name")
	create.Flags().StringVar(&opts.TermID, "term", "", "term id")
	create.Flags().StringVar(&opts.LearningTrack, "track", "", "learning track")
	class.AddCommand(create)
	var termID string
	list := &cobra.Command{
		Use:   "list",
		Short: "List classes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListClasses(ctx, termID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Name", "Term", "Track")
				for _, c := range items {
					tw.AppendRow(row(c.ID, c.Name, c.TermID, c.LearningTrack))
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&termID, "term", "", "term filter")
	class.AddCommand(list)
	return class
}

func sessionCmd() *cobra.Command {
	sess := &cobra.Command{Use: "session", Short: "Manage class sessions"}
	var opts engine.SessionCreateOptions
	var assistants string
	create := &cobra.Command{
		Use:   "create",
		Short: "Schedule a class session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts.ActorID = actorID()
				opts.AssistantEducatorIDs = splitList(assistants)
				s, err := e.CreateSession(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	create.Flags().StringVar(&opts.ClassID, "class", "", "class id")
	create.Flags().StringVar(&opts.Date, "date", "", "YYYY-MM-DD")
	create.Flags().StringVar(&opts.StartTime, "start", "", "HH:MM")
	create.Flags().StringVar(&opts.EndTime, "end", "", "HH:MM")
	create.Flags().StringVar(&opts.LeadEducatorID, "lead", "", "lead educator id")
	create.Flags().StringVar(&assistants, "assistants", "", "comma separated assistant educator ids")
	create.Flags().Float64Var(&opts.DurationHours, "hours", 0, "duration in hours (derived from the times when 0)")
	create.Flags().BoolVar(&opts.Force, "force", false, "book over a compulsory block")
	sess.AddCommand(create)

	var f repo.SessionFilters
	list := &cobra.Command{
		Use:   "list",
		Short: "List sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListSessions(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Class", "Date", "Time", "Lead", "Assistants", "Hours")
				for _, s := range items {
					tw.AppendRow(row(s.ID, s.ClassID, s.Date, s.StartTime+"-"+s.EndTime, s.LeadEducatorID, strings.Join(s.AssistantEducatorIDs, ","), s.DurationHours))
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&f.TermID, "term", "", "term filter")
	list.Flags().StringVar(&f.ClassID, "class", "", "class filter")
	list.Flags().StringVar(&f.Date, "date", "", "date filter")
	list.Flags().StringVar(&f.EducatorID, "educator", "", "lead or assistant educator")
	sess.AddCommand(list)
	return sess
}

func availabilityCmd() *cobra.Command {
	var q scheduling.SlotQuery
	cmd := &cobra.Command{
		Use:   "availability",
		Short: "Check whether an educator is free for a slot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				av, err := e.CheckAvailability(ctx, q)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(av)
				}
				if av.Available {
					fmt.Println("available")
					return nil
				}
				fmt.Println("unavailable:", av.Reason)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&q.EducatorID, "educator", "", "educator id")
	cmd.Flags().StringVar(&q.Date, "date", "", "YYYY-MM-DD")
	cmd.Flags().StringVar(&q.StartTime, "start", "", "HH:MM")
	cmd.Flags().StringVar(&q.EndTime, "end", "", "HH:MM")
	cmd.Flags().StringVar(&q.ExcludeInviteID, "exclude-invite", "", "ignore this invite (when moving it)")
	return cmd
}

func inviteCmd() *cobra.Command {
	inv := &cobra.Command{Use: "invite", Short: "Manage coaching invites"}

	var opts engine.InviteCreateOptions
	create := &cobra.Command{
		Use:   "create",
		Short: "Propose a coaching invite",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts.CreatedByID = actorID()
				out, err := e.CreateInvite(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	}
	create.Flags().StringVar(&opts.EducatorID, "educator", "", "educator id")
	create.Flags().StringVar(&opts.Date, "date", "", "YYYY-MM-DD")
	create.Flags().StringVar(&opts.StartTime, "start", "", "HH:MM")
	create.Flags().StringVar(&opts.EndTime, "end", "", "HH:MM")
	create.Flags().StringVar(&opts.Title, "title", "", "title")
	create.Flags().StringVar(&opts.Notes, "notes", "", "notes")
	inv.AddCommand(create)

	var move engine.InviteRescheduleOptions
	reschedule := &cobra.Command{
		Use:   "reschedule <id>",
		Short: "Move an invite to a new slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				move.ID = args[0]
				move.ActorID = actorID()
				out, err := e.RescheduleInvite(ctx, move)
				if err != nil {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	}
	reschedule.Flags().StringVar(&move.Date, "date", "", "YYYY-MM-DD")
	reschedule.Flags().StringVar(&move.StartTime, "start", "", "HH:MM")
	reschedule.Flags().StringVar(&move.EndTime, "end", "", "HH:MM")
	inv.AddCommand(reschedule)

	for verb, status := range map[string]string{"accept": domain.InviteAccepted, "decline": domain.InviteDeclined} {
		status := status
		inv.AddCommand(&cobra.Command{
			Use:   verb + " <id>",
			Short: "Mark a pending invite " + status,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
					out, err := e.RespondInvite(ctx, args[0], status, actorID())
					if err != nil {
						return err
					}
					return printJSONOrTable(out)
				})
			},
		})
	}

	var f repo.InviteFilters
	list := &cobra.Command{
		Use:   "list",
		Short: "List invites",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListInvites(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Educator", "Date", "Time", "Status", "Title")
				for _, i := range items {
					tw.AppendRow(row(i.ID, i.EducatorID, i.Date, i.StartTime+"-"+i.EndTime, i.Status, i.Title))
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&f.EducatorID, "educator", "", "educator filter")
	list.Flags().StringVar(&f.Date, "date", "", "date filter")
	list.Flags().StringVar(&f.Status, "status", "", "pending|accepted|declined")
	inv.AddCommand(list)
	return inv
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
