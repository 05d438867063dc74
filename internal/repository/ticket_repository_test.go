package repository

import (
    "context"
    "testing"

    "github.com/stretchr/testify/suite"

    "github.com/iliyamo/vat-ticketing/internal/testutil/containers"
)

func TestTicketRepoSuite(t *testing.T) {
    db := containers.NewMySQLContainer(t)
    suite.Run(t, &TicketStoreSuite{newStore: func() (ticketStore, error) {
        if err := db.Reset(context.Background()); err != nil {
            return nil, err
        }
        return NewTicketRepo(db.DB), nil
    }})
}
