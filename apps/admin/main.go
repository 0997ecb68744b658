package main

import (
	"log"
	"os"

	"github.com/jmoiron/sqlx"

	"github.com/tchoudhury/pathshala/core"
	"github.com/tchoudhury/pathshala/core/library"
	"github.com/tchoudhury/pathshala/core/user"
	"github.com/tchoudhury/pathshala/storage/database"
	pgrepos "github.com/tchoudhury/pathshala/storage/database/postgres"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	// set up DB
	errAndDie(database.CreateIfNotExist(core.Conf))
	sdb, err := database.Open(core.Conf)
	errAndDie(err)
	defer func() { _ = sdb.Close() }()
	errAndDie(sdb.Ping())
	db := sqlx.NewDb(sdb, core.Conf.Database.Engine)

	libRepo := pgrepos.NewLibraryRepository(db)

	// start CLI
	cli := commandLine{
		db:     sdb,
		usrSvc: user.NewService(pgrepos.NewUserRepository(db)),
		libSvc: library.NewService(libRepo, pgrepos.NewStudentRepository(db), noopMailer{}),
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

// noopMailer drops outgoing mail; admin commands have no one to notify.
type noopMailer struct{}

func (noopMailer) SendMessages(...*core.EmailMessage) {}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
