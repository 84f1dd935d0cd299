package store

const schema = `
CREATE TABLE IF NOT EXISTS topic_categories (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL UNIQUE,
    description TEXT NOT NULL DEFAULT '',
    icon        TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS ai_topics (
    id            TEXT PRIMARY KEY,
    category_id   TEXT NOT NULL REFERENCES topic_categories(id) ON DELETE CASCADE,
    title         TEXT NOT NULL,
    question_text TEXT NOT NULL,
    description   TEXT NOT NULL DEFAULT '',
    is_active     BOOLEAN NOT NULL DEFAULT 1,
    created_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ai_topics_category ON ai_topics(category_id);

CREATE TABLE IF NOT EXISTS trending_topics (
    id             TEXT PRIMARY KEY,
    source         TEXT NOT NULL,
    raw_topic      TEXT NOT NULL,
    summary        TEXT NOT NULL DEFAULT '',
    question_text  TEXT NOT NULL,
    context        TEXT NOT NULL DEFAULT '',
    category       TEXT NOT NULL DEFAULT 'General',
    keywords       TEXT NOT NULL DEFAULT '[]',
    trending_score INTEGER NOT NULL DEFAULT 0,
    vote_count     INTEGER NOT NULL DEFAULT 0,
    is_active      BOOLEAN NOT NULL DEFAULT 1,
    is_safe        BOOLEAN NOT NULL DEFAULT 1,
    scraped_at     DATETIME NOT NULL,
    created_at     DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trending_active ON trending_topics(is_active, vote_count, trending_score);
CREATE INDEX IF NOT EXISTS idx_trending_created ON trending_topics(created_at);

CREATE TABLE IF NOT EXISTS questions (
    id                TEXT PRIMARY KEY,
    text              TEXT NOT NULL,
    source            TEXT NOT NULL,
    topic_id          TEXT REFERENCES ai_topics(id) ON DELETE SET NULL,
    trending_topic_id TEXT REFERENCES trending_topics(id) ON DELETE SET NULL,
    is_trending       BOOLEAN NOT NULL DEFAULT 0,
    moderation_status TEXT NOT NULL DEFAULT 'approved',
    trending_score    INTEGER,
    created_at        DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_questions_created ON questions(created_at);

CREATE TABLE IF NOT EXISTS votes (
    id           TEXT PRIMARY KEY,
    question_id  TEXT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
    user_id      TEXT,
    session_id   TEXT,
    choice       TEXT NOT NULL CHECK (choice IN ('yes', 'no')),
    is_anonymous BOOLEAN NOT NULL DEFAULT 0,
    created_at   DATETIME NOT NULL,
    CHECK (user_id IS NOT NULL OR session_id IS NOT NULL)
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_votes_user ON votes(question_id, user_id) WHERE user_id IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS uq_votes_session ON votes(question_id, session_id) WHERE session_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS trend_votes (
    id                TEXT PRIMARY KEY,
    trending_topic_id TEXT NOT NULL REFERENCES trending_topics(id) ON DELETE CASCADE,
    user_id           TEXT,
    session_id        TEXT,
    is_anonymous      BOOLEAN NOT NULL DEFAULT 0,
    created_at        DATETIME NOT NULL,
    CHECK (user_id IS NOT NULL OR session_id IS NOT NULL)
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_trend_votes_user ON trend_votes(trending_topic_id, user_id) WHERE user_id IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS uq_trend_votes_session ON trend_votes(trending_topic_id, session_id) WHERE session_id IS NOT NULL;

CREATE TRIGGER IF NOT EXISTS trg_trend_votes_insert AFTER INSERT ON trend_votes
BEGIN
    UPDATE trending_topics SET vote_count = vote_count + 1 WHERE id = NEW.trending_topic_id;
END;

CREATE TRIGGER IF NOT EXISTS trg_trend_votes_delete AFTER DELETE ON trend_votes
BEGIN
    UPDATE trending_topics SET vote_count = vote_count - 1 WHERE id = OLD.trending_topic_id;
END;

CREATE TABLE IF NOT EXISTS crowned_trends (
    id                TEXT PRIMARY KEY,
    trending_topic_id TEXT NOT NULL REFERENCES trending_topics(id),
    vote_count        INTEGER NOT NULL DEFAULT 0,
    crowned_date      TEXT NOT NULL UNIQUE,
    voice_script      TEXT NOT NULL DEFAULT '',
    created_at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS scheduler_state (
    key                 TEXT PRIMARY KEY,
    last_update         DATETIME,
    next_update         DATETIME,
    last_breaking_check DATETIME,
    is_updating         BOOLEAN NOT NULL DEFAULT 0
);
`

// seedCategories are inserted once so the topic selector has something to show.
var seedCategories = []Category{
	{Name: "Technology", Description: "Gadgets, AI, software and the internet", Icon: "cpu"},
	{Name: "Politics", Description: "Elections, policy and government", Icon: "landmark"},
	{Name: "Health", Description: "Medicine, wellness and public health", Icon: "heart-pulse"},
	{Name: "Science", Description: "Space, research and discovery", Icon: "flask"},
	{Name: "Business", Description: "Markets, companies and work", Icon: "briefcase"},
	{Name: "Sports", Description: "Games, leagues and athletes", Icon: "trophy"},
	{Name: "Entertainment", Description: "Film, music, TV and celebrities", Icon: "clapperboard"},
	{Name: "Environment", Description: "Climate, energy and nature", Icon: "leaf"},
}
