// Package file provides file-based persistence for flows, recipients,
// messages and campaigns. It is the default backend for development and
// tests; production deployments use the postgresql package.
package file

import (
	"context"
	"os"
	"strings"

	"github.com/zapflow/zapflow/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root          string
	flowRepo      *FlowRepository
	recipientRepo *RecipientRepository
	messageRepo   *MessageRepository
	campaignRepo  *CampaignRepository
	flowStateRepo *FlowStateRepository
}

// NewPersistence creates a new instance of Persistence rooted at the given directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)
	messageRepo := NewMessageRepository(cleanRoot)

	return &Persistence{
		root:          cleanRoot,
		flowRepo:      NewFlowRepository(cleanRoot),
		recipientRepo: NewRecipientRepository(cleanRoot, messageRepo),
		messageRepo:   messageRepo,
		campaignRepo:  NewCampaignRepository(cleanRoot),
		flowStateRepo: NewFlowStateRepository(cleanRoot),
	}
}

func (fp *Persistence) Flows() persistence.FlowRepository {
	return fp.flowRepo
}

func (fp *Persistence) Recipients() persistence.RecipientRepository {
	return fp.recipientRepo
}

func (fp *Persistence) Messages() persistence.MessageRepository {
	return fp.messageRepo
}

func (fp *Persistence) Campaigns() persistence.CampaignRepository {
	return fp.campaignRepo
}

func (fp *Persistence) FlowStates() persistence.FlowStateRepository {
	return fp.flowStateRepo
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}
