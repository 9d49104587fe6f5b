package portal

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"tourdesk/internal/domain"
	"tourdesk/internal/engine"
)

type catalogueView struct {
	Activities []domain.Activity
}

type activityView struct {
	engine.PublicActivityView
	Quote *engine.Quote
	Form  quoteForm
}

func (p *Portal) handleCatalogue(w http.ResponseWriter, r *http.Request) {
	list, err := p.engine.PublicActivities(r.Context())
	if err != nil {
		p.loadFailed(w, r, err)
		return
	}
	p.render(w, r, http.StatusOK, "catalogue.html", p.page(r, "catalogue", catalogueView{Activities: list}))
}

func (p *Portal) handlePublicActivity(w http.ResponseWriter, r *http.Request) {
	v, err := p.engine.PublicActivity(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		p.loadFailed(w, r, err)
		return
	}
	p.render(w, r, http.StatusOK, "activity.html", p.page(r, "catalogue", activityView{
		PublicActivityView: v,
		Form:               quoteForm{Participants: 1},
	}))
}

// handleQuote prices a package for the visitor. Nothing is booked; the
// quote is rendered back into the activity page.
func (p *Portal) handleQuote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	activityID := chi.URLParam(r, "id")
	v, err := p.engine.PublicActivity(ctx, activityID)
	if err != nil {
		p.loadFailed(w, r, err)
		return
	}
	view := activityView{PublicActivityView: v}
	form, err := parseQuoteForm(r)
	if err == nil {
		view.Form = form
		err = p.check(form)
	}
	if err == nil {
		var quote engine.Quote
		pkg, perr := p.engine.PublicPackage(ctx, activityID, form.PackageID)
		if perr == nil {
			quote, perr = p.engine.QuotePackage(pkg, form.Tier, form.Participants)
		}
		if err = perr; err == nil {
			view.Quote = &quote
		}
	}
	data := p.page(r, "catalogue", view)
	code := http.StatusOK
	if err != nil {
		code = statusFor(err)
		if code == http.StatusNotFound {
			// An unknown package on a known activity is a form problem.
			code = http.StatusUnprocessableEntity
		}
		data.Error = userMessage(err)
	}
	p.render(w, r, code, "activity.html", data)
}
