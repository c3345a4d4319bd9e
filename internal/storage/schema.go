package storage

const schema = `
-- The 'boxes' table stores the scheduling metadata of each Leitner box, in order.
CREATE TABLE IF NOT EXISTS boxes (
    position INTEGER PRIMARY KEY,
    review_interval INTEGER NOT NULL,
    last_reviewed DATETIME -- NULL until the box is first emptied
);

-- The 'cards' table stores every card still in the system and where it sits.
CREATE TABLE IF NOT EXISTS cards (
    id TEXT PRIMARY KEY,
    box_position INTEGER NOT NULL,
    seq INTEGER NOT NULL, -- order within the box
    word TEXT NOT NULL,
    language_code TEXT NOT NULL DEFAULT '',
    meaning TEXT NOT NULL DEFAULT '',
    example_sentence TEXT NOT NULL DEFAULT '',

    FOREIGN KEY(box_position) REFERENCES boxes(position)
);

-- The 'review_logs' table keeps the history of review outcomes. to_box is -1 for retired cards.
CREATE TABLE IF NOT EXISTS review_logs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    card_id TEXT NOT NULL,
    reviewed_at DATETIME NOT NULL,
    correct INTEGER NOT NULL,
    from_box INTEGER NOT NULL,
    to_box INTEGER NOT NULL
);

-- The 'sources' table tracks where decks are imported from, either a local directory or a git repository.
CREATE TABLE IF NOT EXISTS sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL DEFAULT 'local', -- 'local' or 'git'
    last_scanned DATETIME
);

-- The 'card_sources' table links each imported card to the sources that provide it.
CREATE TABLE IF NOT EXISTS card_sources (
    card_id TEXT NOT NULL,
    source_id INTEGER NOT NULL,

    PRIMARY KEY(card_id, source_id),
    FOREIGN KEY(source_id) REFERENCES sources(id)
);
`
