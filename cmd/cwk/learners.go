package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"cwkhub/internal/engine"
	"cwkhub/internal/repo"
)

func enrollmentCmd() *cobra.Command {
	en := &cobra.Command{Use: "enrollment", Short: "Manage class enrolments"}

	var opts engine.EnrollOptions
	add := &cobra.Command{
		Use:   "add",
		Short: "Enrol a learner in a class",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts.ActorID = actorID()
				out, err := e.Enroll(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	}
	add.Flags().StringVar(&opts.LearnerID, "learner", "", "learner id")
	add.Flags().StringVar(&opts.ClassID, "class", "", "class id")
	add.Flags().BoolVar(&opts.Force, "force", false, "enrol despite overlapping sessions")
	en.AddCommand(add)

	var learner, class string
	check := &cobra.Command{
		Use:   "check",
		Short: "Show which active class would clash with a new enrolment",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				name, conflict, err := e.CheckEnrollmentConflict(ctx, learner, class)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"conflict": conflict, "class_name": name})
				}
				if conflict {
					fmt.Printf("conflicts with %s\n", name)
				} else {
					fmt.Println("no conflict")
				}
				return nil
			})
		},
	}
	check.Flags().StringVar(&learner, "learner", "", "learner id")
	check.Flags().StringVar(&class, "class", "", "class id")
	en.AddCommand(check)

	var status string
	var force bool
	set := &cobra.Command{
		Use:   "status <id>",
		Short: "Set enrolment status (active|dropped|completed)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				out, err := e.SetEnrollmentStatus(ctx, args[0], status, actorID(), force)
				if err != nil {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	}
	set.Flags().StringVar(&status, "status", "", "active|dropped|completed")
	set.Flags().BoolVar(&force, "force", false, "reactivate despite overlapping sessions")
	en.AddCommand(set)

	en.AddCommand(&cobra.Command{
		Use:   "remove <id>",
		Short: "Delete an enrolment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.RemoveEnrollment(ctx, args[0], actorID())
			})
		},
	})

	var f repo.EnrollmentFilters
	list := &cobra.Command{
		Use:   "list",
		Short: "List enrolments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListEnrollments(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Learner", "Class", "Term", "Status")
				for _, it := range items {
					tw.AppendRow(row(it.ID, it.LearnerID, it.ClassID, it.TermID, it.Status))
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&f.LearnerID, "learner", "", "learner filter")
	list.Flags().StringVar(&f.ClassID, "class", "", "class filter")
	list.Flags().StringVar(&f.TermID, "term", "", "term filter")
	list.Flags().StringVar(&f.Status, "status", "", "status filter")
	en.AddCommand(list)
	return en
}

func attendanceCmd() *cobra.Command {
	att := &cobra.Command{Use: "attendance", Short: "Record and summarise attendance"}

	var opts engine.AttendanceOptions
	record := &cobra.Command{
		Use:   "record",
		Short: "Record a learner's status for a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts.ActorID = actorID()
				out, err := e.RecordAttendance(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	}
	record.Flags().StringVar(&opts.SessionID, "session", "", "session id")
	record.Flags().StringVar(&opts.LearnerID, "learner", "", "learner id")
	record.Flags().StringVar(&opts.Status, "status", "present", "present|late|absent|excused")
	att.AddCommand(record)

	var learner, class string
	summary := &cobra.Command{
		Use:   "summary",
		Short: "Attendance percentage for a learner in a class",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				sum, err := e.AttendancePercentage(ctx, learner, class)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(sum)
				}
				fmt.Printf("%s in %s: %.0f%% of %d sessions\n", sum.LearnerID, sum.ClassID, sum.Percentage, sum.SessionCount)
				return nil
			})
		},
	}
	summary.Flags().StringVar(&learner, "learner", "", "learner id")
	summary.Flags().StringVar(&class, "class", "", "class id")
	att.AddCommand(summary)
	return att
}
