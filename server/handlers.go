package server

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/tailored-agentic-units/datashelf/dataset"
	"github.com/tailored-agentic-units/datashelf/session"
)

type selectionRequest struct {
	Dataset string `json:"dataset"`
}

type loadRequest struct {
	Flag    string        `json:"flag,omitempty"`
	Dataset string        `json:"dataset"`
	Query   dataset.Query `json:"query"`

	// Clubs narrows the load to rows involving any of the clubs, using the
	// dataset's club columns. ClubNames does the same by display name.
	Clubs     []string `json:"clubs,omitempty"`
	ClubNames []string `json:"club_names,omitempty"`
}

type clubsResponse struct {
	Clubs []string `json:"clubs"`
}

type datasetsResponse struct {
	Datasets []dataset.Descriptor `json:"datasets"`
}

func (s *Server) listDatasets(c echo.Context) error {
	return c.JSON(http.StatusOK, datasetsResponse{Datasets: s.explorer.List()})
}

func (s *Server) describeDataset(c echo.Context) error {
	desc, err := s.explorer.Describe(c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, desc)
}

func (s *Server) createSession(c echo.Context) error {
	return c.JSON(http.StatusCreated, s.explorer.NewSession())
}

func (s *Server) getSession(c echo.Context) error {
	snap, err := s.explorer.Session(c.Param("sid"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, snap)
}

func (s *Server) endSession(c echo.Context) error {
	if err := s.explorer.EndSession(c.Param("sid")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) selectDataset(c echo.Context) error {
	var req selectionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(fmt.Sprintf("malformed selection: %v", err))
	}
	if req.Dataset == "" {
		return badRequest("dataset is required")
	}

	sid := c.Param("sid")
	if err := s.explorer.Select(sid, req.Dataset); err != nil {
		return httpError(err)
	}
	return s.getSession(c)
}

func (s *Server) loadDataset(c echo.Context) error {
	var req loadRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(fmt.Sprintf("malformed load request: %v", err))
	}
	if req.Dataset == "" {
		return badRequest("dataset is required")
	}

	table, err := s.load(c.Request().Context(), c.Param("sid"), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, table)
}

// load runs req for session sid. It is shared by the JSON API and RPC.
func (s *Server) load(ctx context.Context, sid string, req loadRequest) (*dataset.Table, error) {
	if req.Flag == "" {
		req.Flag = session.FlagPrimary
	}
	if req.Query.Limit < 0 {
		return nil, fmt.Errorf("%w: negative limit %d", dataset.ErrInvalidQuery, req.Query.Limit)
	}

	if len(req.ClubNames) > 0 {
		ids, err := s.explorer.ResolveClubs(ctx, sid, req.ClubNames...)
		if err != nil {
			return nil, err
		}
		req.Clubs = append(req.Clubs, ids...)
	}

	if len(req.Clubs) > 0 {
		desc, err := s.explorer.Describe(req.Dataset)
		if err != nil {
			return nil, err
		}
		filter, ok := desc.ClubFilter(req.Clubs...)
		if !ok {
			return nil, fmt.Errorf("%w: dataset %s has no club columns", dataset.ErrInvalidQuery, req.Dataset)
		}
		req.Query.Filters = append(req.Query.Filters, filter)
	}

	return s.explorer.Load(ctx, sid, req.Flag, req.Dataset, req.Query)
}

func (s *Server) markLoaded(c echo.Context) error {
	sid := c.Param("sid")
	if err := s.explorer.MarkLoaded(sid, c.Param("flag")); err != nil {
		return httpError(err)
	}
	return s.getSession(c)
}

func (s *Server) resetFlag(c echo.Context) error {
	sid := c.Param("sid")
	if err := s.explorer.Reset(sid, c.Param("flag")); err != nil {
		return httpError(err)
	}
	return s.getSession(c)
}

func (s *Server) dateRange(c echo.Context) error {
	span, err := s.explorer.DateRange(c.Request().Context(), c.Param("sid"), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, span)
}

// listClubs returns every club name, or with league parameters the clubs
// that played in those leagues between the optional from and to seasons.
func (s *Server) listClubs(c echo.Context) error {
	ctx := c.Request().Context()
	sid := c.Param("sid")

	leagues := c.QueryParams()["league"]
	if len(leagues) == 0 {
		dir, err := s.explorer.Clubs(ctx, sid)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, clubsResponse{Clubs: dir.Names()})
	}

	from, err := seasonParam(c, "from", math.MinInt)
	if err != nil {
		return badRequest(err.Error())
	}
	to, err := seasonParam(c, "to", math.MaxInt)
	if err != nil {
		return badRequest(err.Error())
	}

	names, err := s.explorer.ClubNames(ctx, sid, leagues, from, to)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, clubsResponse{Clubs: names})
}

func seasonParam(c echo.Context, name string, fallback int) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a season year, got %q", name, v)
	}
	return n, nil
}

func (s *Server) cacheStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.explorer.Stats())
}
