package novella_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/novella"
	"github.com/aretw0/novella/pkg/domain"
	"github.com/aretw0/novella/pkg/dsl"
)

// ExampleEngine_StartPlaythrough plays a story built in code, from the first
// scene to an ending.
func ExampleEngine_StartPlaythrough() {
	b := dsl.New("gate").Title("The Gate").Stat("curiosity", 0, 5, 0)
	b.Start("start").Go("field")
	b.Scene("field").
		Text("A gate stands open in an empty field.").
		Do(domain.Modify(domain.TargetStat, "curiosity", domain.OpAdd, 1)).
		Go("ask")
	b.Choice("ask").
		Text("Walk through?").
		Option("yes", "Step through", "beyond").
		Option("no", "Turn back", "home")
	b.Ending("beyond", "beyond", "GOOD").Ends("Somewhere Else", "")
	b.Ending("home", "home", "NORMAL")

	loader, err := b.Loader()
	if err != nil {
		log.Fatal(err)
	}
	// The path is empty because the loader is provided.
	eng, err := novella.New("", novella.WithLoader(loader))
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	resp, err := eng.StartPlaythrough(ctx, "gate", novella.StartOptions{PlaythroughID: "reader-1"})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(resp.Presentation.Kind+":", resp.Presentation.Scene.Text)

	// An empty selection continues past a scene.
	resp, err = eng.Resume(ctx, resp.State, "")
	if err != nil {
		log.Fatal(err)
	}
	for _, o := range resp.Presentation.Choices.Options {
		fmt.Printf("[%s] %s\n", o.ID, o.Text)
	}

	resp, err = eng.Resume(ctx, resp.State, "yes")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("ending:", resp.Ending.EndingID, "-", resp.Ending.Title)
	fmt.Println("curiosity:", resp.State.Stats["curiosity"])
	// Output:
	// show_scene: A gate stands open in an empty field.
	// [yes] Step through
	// [no] Turn back
	// ending: beyond - Somewhere Else
	// curiosity: 1
}

// ExampleEngine_DescribeChoices lists what a reader may pick without
// advancing the playthrough.
func ExampleEngine_DescribeChoices() {
	b := dsl.New("door").Flag("has_key")
	b.Start("start").Go("door")
	b.Choice("door").
		Option("knock", "Knock", "end").
		Option("unlock", "Unlock it", "end").If("flag.has_key").Hidden()
	b.Ending("end", "end", "")

	loader, err := b.Loader()
	if err != nil {
		log.Fatal(err)
	}
	eng, err := novella.New("", novella.WithLoader(loader))
	if err != nil {
		log.Fatal(err)
	}

	resp, err := eng.StartPlaythrough(context.Background(), "door", novella.StartOptions{})
	if err != nil {
		log.Fatal(err)
	}
	options, err := eng.DescribeChoices(resp.State, "door")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(len(options), options[0].ID)
	// Output: 1 knock
}
