package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE flows (
				id UUID PRIMARY KEY,
				account_id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				triggers JSONB NOT NULL DEFAULT '[]',
				start_node VARCHAR(255) NOT NULL,
				nodes JSONB NOT NULL DEFAULT '[]',
				status VARCHAR(50) NOT NULL CHECK (status IN ('active', 'inactive', 'disabled')),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_flows_account_id ON flows(account_id);
			CREATE INDEX idx_flows_status ON flows(status);

			CREATE TABLE recipients (
				id UUID PRIMARY KEY,
				account_id VARCHAR(255) NOT NULL,
				phone VARCHAR(50) NOT NULL,
				name VARCHAR(255),
				attributes JSONB DEFAULT '{}',
				has_conversation BOOLEAN NOT NULL DEFAULT false,
				opted_out BOOLEAN NOT NULL DEFAULT false,
				status VARCHAR(50) NOT NULL DEFAULT 'undelivered',
				active_campaign_id UUID,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE UNIQUE INDEX idx_recipients_account_phone ON recipients(account_id, phone);

			CREATE TABLE messages (
				id UUID PRIMARY KEY,
				account_id VARCHAR(255) NOT NULL,
				recipient_id UUID NOT NULL REFERENCES recipients(id),
				campaign_id UUID,
				direction VARCHAR(20) NOT NULL CHECK (direction IN ('inbound', 'outbound')),
				wamid VARCHAR(255),
				body TEXT,
				status VARCHAR(50) NOT NULL DEFAULT 'pending',
				error TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_messages_recipient_id ON messages(recipient_id);
			CREATE INDEX idx_messages_wamid ON messages(wamid);
			CREATE INDEX idx_messages_campaign_id ON messages(campaign_id);

			CREATE TABLE campaigns (
				id UUID PRIMARY KEY,
				account_id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				template_name VARCHAR(255) NOT NULL,
				language VARCHAR(20),
				phone_number_id VARCHAR(255),
				recipient_ids TEXT[] NOT NULL DEFAULT '{}',
				schedule VARCHAR(255),
				status VARCHAR(50) NOT NULL CHECK (status IN ('pending', 'scheduled', 'completed', 'failed')),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_campaigns_account_id ON campaigns(account_id);
			CREATE INDEX idx_campaigns_status ON campaigns(status);

			-- Append-only stats log. Rows are inserted, never updated; the
			-- unique index makes duplicate delivery callbacks no-ops.
			CREATE TABLE campaign_recipient_stats (
				campaign_id UUID NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
				recipient_id UUID NOT NULL,
				name VARCHAR(255),
				phone VARCHAR(50) NOT NULL,
				status VARCHAR(50) NOT NULL,
				error TEXT,
				at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE UNIQUE INDEX idx_campaign_stats_unique ON campaign_recipient_stats(campaign_id, recipient_id, status);
			CREATE INDEX idx_campaign_stats_campaign_id ON campaign_recipient_stats(campaign_id);

			CREATE TABLE flow_states (
				recipient_id UUID PRIMARY KEY,
				flow_id UUID NOT NULL,
				node_id VARCHAR(255) NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);
		`,
	}
}
