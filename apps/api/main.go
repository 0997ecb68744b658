package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"

	echoapi "github.com/tchoudhury/pathshala/apps/api/echo"
	"github.com/tchoudhury/pathshala/core"
	"github.com/tchoudhury/pathshala/core/library"
	"github.com/tchoudhury/pathshala/core/student"
	"github.com/tchoudhury/pathshala/core/user"
	emailsvc "github.com/tchoudhury/pathshala/services/email"
	logsvc "github.com/tchoudhury/pathshala/services/logger"
	"github.com/tchoudhury/pathshala/storage/database"
	pgrepos "github.com/tchoudhury/pathshala/storage/database/postgres"
)

func main() {
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		core.Conf,
	)
	logger.Enable(!core.Conf.Debug)

	// set up DB
	sdb, err := database.Open(core.Conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	defer func() { _ = sdb.Close() }()
	db := sqlx.NewDb(sdb, core.Conf.Database.Engine)

	// set up services
	var mailSvc core.EmailService
	if core.Conf.Debug {
		mailSvc = emailsvc.NewConsoleService()
	} else {
		mailSvc = emailsvc.NewSendgridService(logger)
	}

	libRepo := pgrepos.NewLibraryRepository(db)
	stdRepo := pgrepos.NewStudentRepository(db)
	usrSvc := user.NewService(pgrepos.NewUserRepository(db))
	stdSvc := student.NewService(stdRepo, libRepo)
	libSvc := library.NewService(libRepo, stdRepo, mailSvc)

	// start API server
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	app := echoapi.NewServer(
		&echoapi.Options{
			Address:        core.Conf.Server.Address(),
			UserSvc:        usrSvc,
			StudentSvc:     stdSvc,
			LibrarySvc:     libSvc,
			Logger:         logger,
			SignalShutdown: func() { shutdown <- syscall.SIGTERM },
		},
	)

	logger.Info(fmt.Sprintf("Application starting : version %q", core.Conf.Build))
	go app.Start()

	sig := <-shutdown
	logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

	ctx, cancel := context.WithTimeout(context.Background(), core.Conf.Server.ShutdownTimeout)
	defer cancel()
	if err := app.Stop(ctx); err != nil {
		logger.Fatal(fmt.Sprintf("could not stop server gracefully: %v", err), err)
	}
	logger.Info("Application stopped")
}
