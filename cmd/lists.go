package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/listsync/internal/models"
	"github.com/desertthunder/listsync/internal/services"
	"github.com/urfave/cli/v3"
)

func (r *Runner) runContext(ctx context.Context, cmd *cli.Command) (*services.RunContext, error) {
	cfg, err := r.loadConfig(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return r.resolve(ctx, cfg)
}

// ListInfo prints the list name and member statistics.
func (r *Runner) ListInfo(ctx context.Context, cmd *cli.Command) error {
	rc, err := r.runContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer rc.Close()

	info, err := services.NewListClient(rc.Transport, rc.ListID).FindList(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(info, cmd.Bool("pretty"))
	}

	r.writePlainHeader(info.Name)
	r.writePlain("ID: %s\n", info.ID)
	r.writePlain("Datacenter: %s\n", rc.DataCenter)
	r.writePlain("Members: %d\n", info.Stats.MemberCount)
	r.writePlain("Unsubscribed: %d\n", info.Stats.UnsubscribeCount)
	r.writePlain("Cleaned: %d\n", info.Stats.CleanedCount)
	r.writePlain("Merge fields: %d\n", info.Stats.MergeFieldCount)
	if info.Stats.LastSubDate != "" {
		r.writePlain("Last subscribe: %s\n", info.Stats.LastSubDate)
	}
	return nil
}

type categoryView struct {
	models.Category
	Interests []models.Interest `json:"interests"`
}

// ListCategories prints every interest category with its interests.
func (r *Runner) ListCategories(ctx context.Context, cmd *cli.Command) error {
	rc, err := r.runContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer rc.Close()

	resolver := services.NewMetadataResolver(rc.Transport, rc.ListID, r.logger)
	categories, err := resolver.ListCategories(ctx)
	if err != nil {
		return err
	}

	views := make([]categoryView, 0, len(categories))
	for _, c := range categories {
		interests, err := resolver.ListInterests(ctx, c.ID)
		if err != nil {
			return err
		}
		views = append(views, categoryView{Category: c, Interests: interests})
	}

	if cmd.Bool("json") {
		return r.writeJSON(views, cmd.Bool("pretty"))
	}

	if len(views) == 0 {
		return r.writePlain("No interest categories\n")
	}
	for _, v := range views {
		names := make([]string, len(v.Interests))
		for i, in := range v.Interests {
			names[i] = in.Name
		}
		r.writePlain("%s (%s, %s)\n", v.Title, v.ID, v.Type)
		if len(names) > 0 {
			r.writePlain("  %s\n", strings.Join(names, ", "))
		}
	}
	return nil
}

// ListMergeFields prints merge field tags and types.
func (r *Runner) ListMergeFields(ctx context.Context, cmd *cli.Command) error {
	rc, err := r.runContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer rc.Close()

	fields, err := services.NewMetadataResolver(rc.Transport, rc.ListID, r.logger).ListMergeFields(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(fields, cmd.Bool("pretty"))
	}

	for _, f := range fields {
		known := ""
		if !f.Type.Known() {
			known = " (unknown type, sent as text)"
		}
		r.writePlain("%-12s %-10s %s%s\n", f.Tag, f.Type, f.Name, known)
	}
	r.writePlain("%s\n", fmt.Sprintf("%d merge fields", len(fields)))
	return nil
}
