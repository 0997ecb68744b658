package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/tchoudhury/pathshala/core/library"
	"github.com/tchoudhury/pathshala/core/user"
)

type libraryApi struct {
	svc *library.Service
}

func registerLibraryAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *library.Service) {
	api := libraryApi{svc: svc}

	lg := g.Group("/library", jwt)
	librarian := roleMiddleware(user.RoleLibrarian)
	anyStaff := roleMiddleware(user.RoleLibrarian, user.RoleAccountant, user.RoleStaff)

	// catalog
	bg := lg.Group("/books")
	bg.POST("", api.createBook, librarian)
	bg.GET("", api.queryBooks, anyStaff)
	bg.GET("/:id", api.retrieveBook, anyStaff)
	bg.PUT("/:id", api.updateBook, librarian)
	bg.DELETE("/:id", api.destroyBook, librarian)

	// circulation
	ig := lg.Group("/issues")
	ig.POST("", api.issueBook, librarian)
	ig.GET("", api.queryIssues, anyStaff)
	ig.GET("/:id", api.retrieveIssue, anyStaff)
	ig.PUT("/:id/return", api.returnBook, librarian)

	// fines
	fg := lg.Group("/fines", roleMiddleware(user.RoleLibrarian, user.RoleAccountant))
	fg.GET("", api.queryFines)
	fg.GET("/:id", api.retrieveFine)
	fg.PUT("/:id", api.settleFine)

	lg.GET("/stats", api.stats, anyStaff)
}

// Catalog

func (api *libraryApi) createBook(ctx echo.Context) error {
	var data library.NewBook
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewBook")
	}
	if err := data.Validate(api.svc); err != nil {
		return err
	}

	book, err := api.svc.CreateBook(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating book")
	}

	return ctx.JSON(http.StatusCreated, book)
}

func (api *libraryApi) queryBooks(ctx echo.Context) error {
	var filter library.BookFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []library.Book{})
	}

	books, err := api.svc.FilterBooks(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying books")
	}
	if books == nil {
		books = []library.Book{}
	}
	return ctx.JSON(http.StatusOK, books)
}

func (api *libraryApi) retrieveBook(ctx echo.Context) error {
	book, err := api.svc.GetBook(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, book)
}

func (api *libraryApi) updateBook(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	origBook, err := api.svc.GetBook(reqCtx, ctx.Param("id"))
	if err != nil {
		return err
	}

	var data library.UpdateBook
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateBook")
	}
	if err := data.Validate(origBook, api.svc); err != nil {
		return err
	}

	book, err := api.svc.UpdateBook(reqCtx, origBook.ID, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, book)
}

func (api *libraryApi) destroyBook(ctx echo.Context) error {
	if err := api.svc.DeleteBook(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Circulation

func (api *libraryApi) issueBook(ctx echo.Context) error {
	var data library.NewIssue
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewIssue")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	rec, err := api.svc.Issue(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, rec)
}

func (api *libraryApi) queryIssues(ctx echo.Context) error {
	var filter library.IssueFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []library.Issue{})
	}

	recs, err := api.svc.FilterIssues(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying issues")
	}
	if recs == nil {
		recs = []library.Issue{}
	}
	return ctx.JSON(http.StatusOK, recs)
}

func (api *libraryApi) retrieveIssue(ctx echo.Context) error {
	rec, err := api.svc.GetIssue(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *libraryApi) returnBook(ctx echo.Context) error {
	var data library.ReturnBook
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ReturnBook")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	rec, err := api.svc.Return(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, rec)
}

// Fines

func (api *libraryApi) queryFines(ctx echo.Context) error {
	var filter library.FineFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []library.Fine{})
	}

	fines, err := api.svc.FilterFines(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying fines")
	}
	if fines == nil {
		fines = []library.Fine{}
	}
	return ctx.JSON(http.StatusOK, fines)
}

func (api *libraryApi) retrieveFine(ctx echo.Context) error {
	fine, err := api.svc.GetFine(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, fine)
}

func (api *libraryApi) settleFine(ctx echo.Context) error {
	var data library.UpdateFine
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateFine")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	fine, err := api.svc.SettleFine(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, fine)
}

func (api *libraryApi) stats(ctx echo.Context) error {
	stats, err := api.svc.Stats(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "computing library stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}
