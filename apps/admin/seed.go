package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/xiangenhu/polyuhulab-sub000/core/comment"
	"github.com/xiangenhu/polyuhulab-sub000/core/profile"
	"github.com/xiangenhu/polyuhulab-sub000/core/project"
	"github.com/xiangenhu/polyuhulab-sub000/core/relation"
	"github.com/xiangenhu/polyuhulab-sub000/core/share"
	"github.com/xiangenhu/polyuhulab-sub000/core/xapi"
)

// demo collaborators joining the seeded projects
var seedMembers = []string{"ada@hulab.demo", "grace@hulab.demo", "alan@hulab.demo"}

// seed writes demo projects and a spread of activity statements so local
// dashboards have something to show.
func (cli *commandLine) seed(actorEmail string, projects, days int) error {
	ctx := context.Background()
	actor := xapi.AgentFromEmail(actorEmail, "Demo Teacher")

	resolver := relation.NewResolver(cli.client, cli.logger)
	projSvc := project.NewService(cli.client, resolver, cli.validate)
	commentSvc := comment.NewService(cli.client, cli.validate)
	shareSvc := share.NewService(cli.client, cli.validate)
	profileSvc := profile.NewService(cli.client, cli.validate)

	if _, err := profileSvc.GetOrCreate(ctx, actor.Email(), actor.Name); err != nil {
		return errors.Wrap(err, "seeding actor profile")
	}
	if _, err := profileSvc.RecordLogin(ctx, actor.Email()); err != nil {
		return errors.Wrap(err, "recording seed login")
	}

	var stmts int
	for p := 0; p < projects; p++ {
		proj, err := projSvc.Create(ctx, actor, project.NewProject{
			Title:       fmt.Sprintf("Demo Project %d", p+1),
			Description: "Seeded for local dashboards.",
			Tags:        []string{"demo"},
		})
		if err != nil {
			return errors.Wrap(err, "seeding project")
		}

		members := seedMembers[:2+p%2]
		if err := projSvc.Collaborate(ctx, actor, proj.ID, members); err != nil {
			return errors.Wrap(err, "seeding collaboration")
		}
		if p%2 == 1 {
			if _, err := projSvc.SetPhase(ctx, actor, proj.ID, project.PhaseInvestigation); err != nil {
				return errors.Wrap(err, "seeding phase")
			}
		}
		if _, err := commentSvc.Create(ctx, xapi.AgentFromEmail(members[0]), comment.NewComment{
			TargetType: project.Kind,
			TargetID:   proj.ID,
			Body:       "Looking good so far.",
		}); err != nil {
			return errors.Wrap(err, "seeding comment")
		}
		if _, err := shareSvc.Create(ctx, actor, share.NewShare{
			ResourceType: project.Kind,
			ResourceID:   proj.ID,
			ResourceName: proj.Title,
			Recipients:   members,
			Message:      "Have a look before class.",
		}); err != nil {
			return errors.Wrap(err, "seeding share")
		}

		// staggered attempts, completions and views across the window
		object := xapi.NewActivity(xapi.ActivityID(project.Kind, proj.ID), xapi.ActivityTypeURI(project.Kind), proj.Title)
		for d := 0; d < days; d++ {
			member := seedMembers[(p+d)%len(seedMembers)]
			ts := time.Now().AddDate(0, 0, -d).Add(-time.Duration(2+(p+d)%6) * time.Hour)

			attempt := &xapi.Statement{
				Actor:     xapi.AgentFromEmail(member),
				Verb:      xapi.VerbAttempted,
				Object:    object,
				Timestamp: ts,
			}
			if _, err := cli.client.SaveStatement(ctx, attempt); err != nil {
				return errors.Wrap(err, "seeding activity")
			}
			stmts++

			if d%2 == 0 {
				done := &xapi.Statement{
					Actor:     xapi.AgentFromEmail(member),
					Verb:      xapi.VerbCompleted,
					Object:    object,
					Timestamp: ts.Add(25 * time.Minute),
				}
				if _, err := cli.client.SaveStatement(ctx, done); err != nil {
					return errors.Wrap(err, "seeding activity")
				}
				stmts++
			}
			if d%3 == 0 {
				viewed := &xapi.Statement{
					Actor:     xapi.AgentFromEmail(seedMembers[(p+d+1)%len(seedMembers)]),
					Verb:      xapi.VerbExperienced,
					Object:    object,
					Timestamp: ts.Add(10 * time.Minute),
				}
				if _, err := cli.client.SaveStatement(ctx, viewed); err != nil {
					return errors.Wrap(err, "seeding activity")
				}
				stmts++
			}
		}
	}

	fmt.Fprintf(cli.out, "seeded %d projects and %d activity statements as %s\n", projects, stmts, actor.Email())
	return nil
}
