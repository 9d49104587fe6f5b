package engine

import (
	"context"
	"fmt"
	"sort"

	"tourdesk/internal/apiclient"
	"tourdesk/internal/domain"
	"tourdesk/internal/money"
	"tourdesk/internal/transform"
)

// PublicActivities lists what the marketing site may show.
func (e Engine) PublicActivities(ctx context.Context) ([]domain.Activity, error) {
	all, err := e.API.ListActivities(ctx, apiclient.Filter{})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Activity, 0, len(all))
	for _, a := range all {
		if a.IsActive {
			out = append(out, a)
		}
	}
	return out, nil
}

type PublicActivityView struct {
	Activity  domain.Activity
	Packages  []transform.Package
	Media     []transform.MediaItem
	Cover     *transform.MediaItem
	FromPrice *money.Cents
}

// PublicActivity hides inactive activities and packages from visitors.
func (e Engine) PublicActivity(ctx context.Context, id string) (PublicActivityView, error) {
	a, err := e.API.GetActivity(ctx, id)
	if err != nil {
		return PublicActivityView{}, err
	}
	if !a.IsActive {
		return PublicActivityView{}, fmt.Errorf("activity %s: %w", id, ErrNotFound)
	}
	pkgs, err := e.API.ListPackages(ctx, id)
	if err != nil {
		return PublicActivityView{}, err
	}
	media, err := e.API.ListMedia(ctx, id)
	if err != nil {
		return PublicActivityView{}, err
	}
	v := PublicActivityView{Activity: a, Packages: []transform.Package{}, Media: media}
	for _, p := range pkgs {
		if !p.IsActive {
			continue
		}
		v.Packages = append(v.Packages, p)
		price := p.BasePrice
		for _, t := range p.Options.PricingTiers {
			if t.Price < price {
				price = t.Price
			}
		}
		if v.FromPrice == nil || price < *v.FromPrice {
			v.FromPrice = &price
		}
	}
	sort.SliceStable(v.Packages, func(i, j int) bool { return v.Packages[i].SortOrder < v.Packages[j].SortOrder })
	if cover, ok := transform.Primary(media); ok {
		v.Cover = &cover
	}
	return v, nil
}

// PublicPackage returns an active package that belongs to activityID.
func (e Engine) PublicPackage(ctx context.Context, activityID, packageID string) (transform.Package, error) {
	p, err := e.API.GetPackage(ctx, packageID)
	if err != nil {
		return transform.Package{}, err
	}
	if !p.IsActive || p.ActivityID != activityID {
		return transform.Package{}, fmt.Errorf("package %s: %w", packageID, ErrNotFound)
	}
	return p, nil
}
